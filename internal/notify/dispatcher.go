// Package notify fans newly found vehicles out to registered push
// recipients through an Expo-style batch delivery endpoint.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dustin/go-humanize"

	"willhaben_watch/internal/model"
)

// deviceNotRegistered is the delivery error code marking a recipient as
// permanently gone (app uninstalled, device unregistered).
const deviceNotRegistered = "DeviceNotRegistered"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Registry is the recipient set the dispatcher reads and prunes.
type Registry interface {
	Recipients() []string
	RemoveRecipient(token string)
}

// message is one push message in the batch request.
type message struct {
	To    string            `json:"to"`
	Sound string            `json:"sound"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}

type ticket struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		Error string `json:"error"`
	} `json:"details"`
}

type pushResponse struct {
	Data []ticket `json:"data"`
}

// Dispatcher sends batched push notifications.
type Dispatcher struct {
	client   HTTPClient
	endpoint string
	registry Registry
	log      *slog.Logger
}

// New creates a Dispatcher delivering through the given endpoint.
func New(client HTTPClient, endpoint string, registry Registry, log *slog.Logger) *Dispatcher {
	return &Dispatcher{client: client, endpoint: endpoint, registry: registry, log: log}
}

// Dispatch sends one message per registered recipient in a single batched
// call. Recipients whose delivery ticket reports an unregistered device are
// removed from the registry; other delivery errors are logged only. Cache
// state is never affected by delivery failures.
func (d *Dispatcher) Dispatch(ctx context.Context, vehicles []model.Vehicle) error {
	tokens := d.registry.Recipients()
	if len(tokens) == 0 || len(vehicles) == 0 {
		return nil
	}

	title, body := formatAlert(vehicles)
	messages := make([]message, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, message{
			To:    token,
			Sound: "default",
			Title: title,
			Body:  body,
			Data:  map[string]string{"vehicleId": vehicles[0].ID},
		})
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send push batch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return fmt.Errorf("read push response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("push endpoint status %d", resp.StatusCode)
	}

	var result pushResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}

	d.log.Info("sent push notifications", "count", len(messages))

	// Tickets come back in request order; prune recipients the push
	// service reports as permanently gone.
	for i, tk := range result.Data {
		if i >= len(messages) || tk.Status != "error" {
			continue
		}
		d.log.Warn("push delivery error", "error", tk.Message, "code", tk.Details.Error)
		if tk.Details.Error == deviceNotRegistered {
			d.registry.RemoveRecipient(messages[i].To)
		}
	}
	return nil
}

// formatAlert builds the count-aware notification title and body.
func formatAlert(vehicles []model.Vehicle) (title, body string) {
	first := vehicles[0]
	if len(vehicles) == 1 {
		price := "N/A"
		if first.Price != nil {
			price = "€" + humanize.Comma(int64(*first.Price))
		}
		return "1 new vehicle", fmt.Sprintf("%s - %s", first.Title, price)
	}
	title = fmt.Sprintf("%d new vehicles", len(vehicles))
	body = fmt.Sprintf("%s and %d more", first.Title, len(vehicles)-1)
	return title, body
}
