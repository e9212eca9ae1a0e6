// Package extractor parses raw search-result pages into vehicle candidates.
// The embedded __NEXT_DATA__ JSON payload is the primary source; a tolerant
// markup scan is the fallback when the payload is absent or empty.
package extractor

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	jsoniter "github.com/json-iterator/go"

	"willhaben_watch/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	siteBaseURL  = "https://www.willhaben.at"
	imageBaseURL = "https://cache.willhaben.at/mmo/"
)

// fuelTypeLabels maps the site's fuel codes to display labels. Unknown codes
// pass through unmapped.
var fuelTypeLabels = map[string]string{
	"100001": "Benzin",
	"100002": "Benzin/Elektro",
	"100003": "Diesel",
	"100004": "Elektro",
	"100005": "Erdgas (CNG)",
	"100006": "Ethanol",
	"100007": "Flüssiggas (LPG)",
	"100008": "Hybrid (Benzin/Elektro)",
	"100009": "Hybrid (Diesel/Elektro)",
	"100010": "Wasserstoff",
}

var nextDataRe = regexp.MustCompile(`(?i)<script[^>]*id="__NEXT_DATA__"[^>]*>([\s\S]*?)</script>`)

// Extractor turns raw page content into filtered vehicle candidates.
type Extractor struct {
	priceCeiling int
	log          *slog.Logger
}

// New creates an Extractor that drops candidates priced above ceiling.
func New(ceiling int, log *slog.Logger) *Extractor {
	return &Extractor{priceCeiling: ceiling, log: log}
}

// Parse extracts vehicle candidates from raw HTML. Commercial sellers are
// excluded entirely; candidates with a known price above the ceiling are
// dropped, unknown prices pass.
func (e *Extractor) Parse(html string) []model.Candidate {
	candidates := e.parseEmbeddedJSON(html)
	if len(candidates) == 0 {
		candidates = e.parseMarkup(html)
	}

	out := make([]model.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Price != nil && *c.Price > e.priceCeiling {
			continue
		}
		out = append(out, c)
	}
	return out
}

// nextData mirrors the slice of the __NEXT_DATA__ payload this service
// actually reads.
type nextData struct {
	Props struct {
		PageProps struct {
			SearchResult struct {
				AdvertSummaryList struct {
					AdvertSummary []advertSummary `json:"advertSummary"`
				} `json:"advertSummaryList"`
			} `json:"searchResult"`
		} `json:"pageProps"`
	} `json:"props"`
}

type advertSummary struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Attributes  struct {
		Attribute []attribute `json:"attribute"`
	} `json:"attributes"`
}

type attribute struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// attrList is a typed lookup over an advert's flat attribute list, built
// once per advert. Missing attributes read as the empty string.
type attrList map[string][]string

func newAttrList(attrs []attribute) attrList {
	m := make(attrList, len(attrs))
	for _, a := range attrs {
		m[a.Name] = a.Values
	}
	return m
}

func (a attrList) first(name string) string {
	if vs := a[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (e *Extractor) parseEmbeddedJSON(html string) []model.Candidate {
	m := nextDataRe.FindStringSubmatch(html)
	if m == nil {
		return nil
	}

	var data nextData
	if err := json.Unmarshal([]byte(m[1]), &data); err != nil {
		// Malformed payload counts as "strategy yielded nothing"; the
		// markup fallback still gets its turn.
		e.log.Warn("decode embedded payload", "error", err)
		return nil
	}

	ads := data.Props.PageProps.SearchResult.AdvertSummaryList.AdvertSummary
	candidates := make([]model.Candidate, 0, len(ads))
	for _, ad := range ads {
		attrs := newAttrList(ad.Attributes.Attribute)
		if !isPrivateSeller(attrs) {
			continue
		}

		title := ad.Description
		if title == "" {
			title = attrs.first("HEADING")
		}
		if title == "" {
			title = "Vehicle"
		}

		location := firstNonEmpty(attrs.first("LOCATION"), attrs.first("CITY"), attrs.first("DISTRICT"))
		if location == "" {
			location = "Österreich"
		}

		bodyText := firstNonEmpty(ad.Description, attrs.first("BODY"), attrs.first("DESCRIPTION"))

		candidates = append(candidates, model.Candidate{
			ID:           "wh-" + ad.ID,
			Title:        title,
			Price:        parseAmount(firstNonEmpty(attrs.first("PRICE/AMOUNT"), attrs.first("PRICE"))),
			Year:         parseIntValue(firstNonEmpty(attrs.first("YEAR_MODEL"), attrs.first("YEAR"))),
			Mileage:      parseIntValue(attrs.first("MILEAGE")),
			Location:     location,
			Postcode:     firstNonEmpty(attrs.first("POSTCODE"), attrs.first("ZIP")),
			FuelType:     fuelLabel(attrs.first("ENGINE/FUEL")),
			ImageURL:     imageURL(attrs.first("MMO")),
			WillhabenURL: detailURL(attrs.first("SEO_URL"), ad.ID),
			Phone:        optional(ExtractPhone(bodyText)),
			SellerName:   optional(attrs.first("CONTACT_NAME")),
			IsPrivate:    true,
		})
	}
	return candidates
}

var markupPriceRe = regexp.MustCompile(`€\s*([\d.,]+)`)

// parseMarkup scans for repeating listing blocks via the stable test-hook
// attribute the site puts on result entries.
func (e *Extractor) parseMarkup(html string) []model.Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		e.log.Warn("parse markup", "error", err)
		return nil
	}

	var candidates []model.Candidate
	doc.Find(`article[data-testid^="search-result-entry-header-"]`).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find("h2").First().Text())
		if len(title) < 3 {
			return
		}

		seller := strings.TrimSpace(sel.Find(`[data-testid^="ad-contact"]`).First().Text())
		if seller == "" {
			seller = strings.TrimSpace(sel.Find(`span[class*="seller"]`).First().Text())
		}
		if isCommercialName(seller) {
			return
		}

		var price *int
		if m := markupPriceRe.FindStringSubmatch(sel.Text()); m != nil {
			price = parseMarkupPrice(m[1])
		}

		var link *string
		if href, ok := sel.Find(`a[href^="/iad/"]`).First().Attr("href"); ok {
			link = optional(siteBaseURL + href)
		}

		candidates = append(candidates, model.Candidate{
			ID:           markupID(title, link),
			Title:        title,
			Price:        price,
			Location:     "Österreich",
			WillhabenURL: link,
			SellerName:   optional(seller),
			IsPrivate:    true,
		})
	})
	return candidates
}

// markupID derives a stable synthetic identity for listings found through
// the markup path, which exposes no ad id. Hashing title+link keeps the id
// constant across cycles so deduplication still works.
func markupID(title string, link *string) string {
	l := ""
	if link != nil {
		l = *link
	}
	h := sha256.Sum256([]byte(title + "|" + l))
	return fmt.Sprintf("wh-sha256:%x", h[:16])
}

// parseAmount handles the structured payload's decimal price values
// ("8500" or "8500.0").
func parseAmount(s string) *int {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	v := int(f)
	return &v
}

// parseMarkupPrice strips grouping characters from display prices, so
// "7.300" reads as 7300.
func parseMarkupPrice(s string) *int {
	var digits strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return nil
	}
	v, err := strconv.Atoi(digits.String())
	if err != nil {
		return nil
	}
	return &v
}

func parseIntValue(s string) *int {
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return &v
}

func fuelLabel(code string) *string {
	if code == "" {
		return nil
	}
	if label, ok := fuelTypeLabels[code]; ok {
		return &label
	}
	return &code
}

func imageURL(mmo string) *string {
	if mmo == "" {
		return nil
	}
	return optional(imageBaseURL + mmo)
}

func detailURL(seoURL, adID string) *string {
	if seoURL != "" {
		return optional(siteBaseURL + "/iad/" + seoURL)
	}
	return optional(siteBaseURL + "/iad/gebrauchtwagen/d/auto/" + adID)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
