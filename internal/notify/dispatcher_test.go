package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"willhaben_watch/internal/model"
	"willhaben_watch/internal/store"
)

type mockPushClient struct {
	mu         sync.Mutex
	statusCode int
	body       string
	err        error
	requests   []string
}

func (m *mockPushClient) Do(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	payload, _ := io.ReadAll(req.Body)
	m.requests = append(m.requests, string(payload))
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func (m *mockPushClient) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func vehicle(id, title string, price *int) model.Vehicle {
	return model.Vehicle{ID: id, Title: title, Price: price, IsPrivate: true, IsNew: true, FirstSeenAt: time.Now().UTC()}
}

func newTestDispatcher(client HTTPClient, st *store.Store) *Dispatcher {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(client, "https://push.example.com/send", st, log)
}

func TestDispatchSkipsWithoutRecipientsOrVehicles(t *testing.T) {
	client := &mockPushClient{statusCode: 200, body: `{"data":[]}`}
	st := store.New()
	d := newTestDispatcher(client, st)

	price := 5000
	if err := d.Dispatch(context.Background(), []model.Vehicle{vehicle("wh-1", "VW Golf", &price)}); err != nil {
		t.Fatalf("dispatch without recipients: %v", err)
	}
	st.AddRecipient("token-1")
	if err := d.Dispatch(context.Background(), nil); err != nil {
		t.Fatalf("dispatch without vehicles: %v", err)
	}

	if got := client.requestCount(); got != 0 {
		t.Errorf("push endpoint called %d times, want 0", got)
	}
}

func TestDispatchBatchesOneMessagePerRecipient(t *testing.T) {
	client := &mockPushClient{statusCode: 200, body: `{"data":[{"status":"ok"},{"status":"ok"}]}`}
	st := store.New()
	st.AddRecipient("token-1")
	st.AddRecipient("token-2")
	d := newTestDispatcher(client, st)

	price := 8500
	if err := d.Dispatch(context.Background(), []model.Vehicle{vehicle("wh-1", "VW Golf 1.6", &price)}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := client.requestCount(); got != 1 {
		t.Fatalf("expected a single batched call, got %d", got)
	}

	var messages []message
	if err := json.Unmarshal([]byte(client.requests[0]), &messages); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("batch size = %d, want 2", len(messages))
	}
	if diff := cmp.Diff("1 new vehicle", messages[0].Title); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("VW Golf 1.6 - €8,500", messages[0].Body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("wh-1", messages[0].Data["vehicleId"]); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchCountAwareSummary(t *testing.T) {
	client := &mockPushClient{statusCode: 200, body: `{"data":[{"status":"ok"}]}`}
	st := store.New()
	st.AddRecipient("token-1")
	d := newTestDispatcher(client, st)

	batch := []model.Vehicle{
		vehicle("wh-1", "VW Golf", nil),
		vehicle("wh-2", "Opel Corsa", nil),
		vehicle("wh-3", "Ford Fiesta", nil),
	}
	if err := d.Dispatch(context.Background(), batch); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var messages []message
	if err := json.Unmarshal([]byte(client.requests[0]), &messages); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if diff := cmp.Diff("3 new vehicles", messages[0].Title); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("VW Golf and 2 more", messages[0].Body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchUnknownPriceReadsNA(t *testing.T) {
	client := &mockPushClient{statusCode: 200, body: `{"data":[{"status":"ok"}]}`}
	st := store.New()
	st.AddRecipient("token-1")
	d := newTestDispatcher(client, st)

	if err := d.Dispatch(context.Background(), []model.Vehicle{vehicle("wh-1", "VW Golf", nil)}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	var messages []message
	if err := json.Unmarshal([]byte(client.requests[0]), &messages); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	if diff := cmp.Diff("VW Golf - N/A", messages[0].Body); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatchPrunesUnregisteredDevices(t *testing.T) {
	st := store.New()
	st.AddRecipient("token-dead")
	client := &mockPushClient{
		statusCode: 200,
		body:       `{"data":[{"status":"error","message":"device gone","details":{"error":"DeviceNotRegistered"}}]}`,
	}
	d := newTestDispatcher(client, st)

	if err := d.Dispatch(context.Background(), []model.Vehicle{vehicle("wh-1", "VW Golf", nil)}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := st.Stats().Recipients; got != 0 {
		t.Errorf("dead recipient not pruned, %d left", got)
	}
}

func TestDispatchKeepsRecipientsOnTransientErrors(t *testing.T) {
	st := store.New()
	st.AddRecipient("token-1")
	client := &mockPushClient{
		statusCode: 200,
		body:       `{"data":[{"status":"error","message":"rate limited","details":{"error":"MessageRateExceeded"}}]}`,
	}
	d := newTestDispatcher(client, st)

	if err := d.Dispatch(context.Background(), []model.Vehicle{vehicle("wh-1", "VW Golf", nil)}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if got := st.Stats().Recipients; got != 1 {
		t.Errorf("transient error pruned a recipient, %d left", got)
	}
}

func TestDispatchEndpointFailure(t *testing.T) {
	st := store.New()
	st.AddRecipient("token-1")
	client := &mockPushClient{statusCode: 500, body: `oops`}
	d := newTestDispatcher(client, st)

	if err := d.Dispatch(context.Background(), []model.Vehicle{vehicle("wh-1", "VW Golf", nil)}); err == nil {
		t.Fatal("expected an error from a 500 response")
	}

	if got := st.Stats().Recipients; got != 1 {
		t.Errorf("endpoint failure pruned a recipient, %d left", got)
	}
}
