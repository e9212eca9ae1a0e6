package extractor

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"

	"willhaben_watch/internal/model"
)

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func newTestExtractor() *Extractor {
	return New(10000, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func candidateIDs(candidates []model.Candidate) []string {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestParseEmbeddedJSON(t *testing.T) {
	html := loadFixture(t, "../../testdata/search_results.html")
	e := newTestExtractor()

	got := e.Parse(html)

	// 222 is an explicit dealer, 333 matches the commercial-name lexicon,
	// 444 sits above the price ceiling.
	wantIDs := []string{"wh-111", "wh-555", "wh-666"}
	if diff := cmp.Diff(wantIDs, candidateIDs(got)); diff != "" {
		t.Fatalf("candidate ids mismatch (-want +got):\n%s", diff)
	}

	price := 8500
	year := 2015
	mileage := 150000
	fuel := "Diesel"
	image := "https://cache.willhaben.at/mmo/12/345/image.jpg"
	link := "https://www.willhaben.at/iad/gebrauchtwagen/d/vw-golf-111"
	phone := "+436641234567"
	seller := "Max Huber"
	want := model.Candidate{
		ID:           "wh-111",
		Title:        "VW Golf 1.6 TDI",
		Price:        &price,
		Year:         &year,
		Mileage:      &mileage,
		Location:     "Wien",
		Postcode:     "1100",
		FuelType:     &fuel,
		ImageURL:     &image,
		WillhabenURL: &link,
		Phone:        &phone,
		SellerName:   &seller,
		IsPrivate:    true,
	}
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Errorf("first candidate mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAttributeFallbacks(t *testing.T) {
	html := loadFixture(t, "../../testdata/search_results.html")
	e := newTestExtractor()

	got := e.Parse(html)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}

	corsa := got[1]
	if corsa.Price != nil {
		t.Errorf("expected unknown price to pass the ceiling, got %d", *corsa.Price)
	}
	if diff := cmp.Diff("Graz", corsa.Location); diff != "" {
		t.Errorf("location fallback mismatch (-want +got):\n%s", diff)
	}
	wantURL := "https://www.willhaben.at/iad/gebrauchtwagen/d/auto/555"
	if corsa.WillhabenURL == nil || *corsa.WillhabenURL != wantURL {
		t.Errorf("expected canonical detail URL %q, got %v", wantURL, corsa.WillhabenURL)
	}

	fiesta := got[2]
	if fiesta.Price == nil || *fiesta.Price != 10000 {
		t.Errorf("expected price 10000 at the ceiling boundary to be included, got %v", fiesta.Price)
	}
}

func TestParseFallsBackToMarkup(t *testing.T) {
	html := loadFixture(t, "../../testdata/search_results_markup.html")
	e := newTestExtractor()

	got := e.Parse(html)
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate (dealer and short-title blocks dropped), got %d", len(got))
	}

	polo := got[0]
	if diff := cmp.Diff("VW Polo 1.2 TSI", polo.Title); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
	if polo.Price == nil || *polo.Price != 7300 {
		t.Errorf("expected price 7300, got %v", polo.Price)
	}
	wantURL := "https://www.willhaben.at/iad/gebrauchtwagen/d/vw-polo-101/"
	if polo.WillhabenURL == nil || *polo.WillhabenURL != wantURL {
		t.Errorf("expected link %q, got %v", wantURL, polo.WillhabenURL)
	}
	if !polo.IsPrivate {
		t.Error("expected markup candidate to be private")
	}

	// The synthetic id must be stable across cycles or deduplication breaks.
	again := e.Parse(html)
	if diff := cmp.Diff(polo.ID, again[0].ID); diff != "" {
		t.Errorf("synthetic id not stable (-want +got):\n%s", diff)
	}
}

func TestParseMalformedPayloadFallsThrough(t *testing.T) {
	html := loadFixture(t, "../../testdata/search_results_malformed.html")
	e := newTestExtractor()

	got := e.Parse(html)
	if len(got) != 1 {
		t.Fatalf("expected markup fallback to yield 1 candidate, got %d", len(got))
	}
	if diff := cmp.Diff("Renault Clio Grandtour", got[0].Title); diff != "" {
		t.Errorf("title mismatch (-want +got):\n%s", diff)
	}
}

func TestParseNoListings(t *testing.T) {
	e := newTestExtractor()
	got := e.Parse("<html><body><p>Keine Ergebnisse</p></body></html>")
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestPriceCeilingBoundary(t *testing.T) {
	tests := []struct {
		name  string
		price string
		want  bool
	}{
		{name: "above ceiling excluded", price: "10001", want: false},
		{name: "at ceiling included", price: "10000", want: true},
		{name: "below ceiling included", price: "9999", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := `<script id="__NEXT_DATA__">{"props":{"pageProps":{"searchResult":{"advertSummaryList":{"advertSummary":[` +
				`{"id":"1","description":"Testwagen","attributes":{"attribute":[` +
				`{"name":"ISPRIVATE","values":["1"]},{"name":"PRICE/AMOUNT","values":["` + tt.price + `"]}]}}]}}}}}</script>`
			got := newTestExtractor().Parse(html)
			if included := len(got) == 1; included != tt.want {
				t.Errorf("price %s: included=%v, want %v", tt.price, included, tt.want)
			}
		})
	}
}
