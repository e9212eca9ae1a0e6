// Package fetcher retrieves raw search-result pages through a chain of
// network strategies: direct first, then rotating proxies as a sequential
// fallback.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"

	"willhaben_watch/internal/proxy"
)

const (
	attemptTimeout = 15 * time.Second
	retryBackoff   = time.Second
	maxRedirects   = 5
	maxBodyBytes   = 10 * 1024 * 1024
)

// ErrExhausted reports that every fetch strategy failed.
var ErrExhausted = errors.New("all fetch strategies exhausted")

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Strategy is one named way of reaching the target site.
type Strategy struct {
	Name   string
	Client HTTPClient
}

// Direct returns a strategy that connects without a proxy. Redirects are
// handled by the fetcher itself, so the client must not follow them.
func Direct() Strategy {
	return Strategy{Name: "direct", Client: newClient(nil)}
}

// Proxied returns a strategy whose outbound identity is drawn from the
// rotator on every request.
func Proxied(name string, rot *proxy.Rotator) Strategy {
	return Strategy{Name: name, Client: newClient(func(*http.Request) (*url.URL, error) {
		return rot.Next(), nil
	})}
}

func newClient(proxyFn func(*http.Request) (*url.URL, error)) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFn
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Fetcher downloads pages, falling back through its strategies in order.
type Fetcher struct {
	strategies []Strategy
	backoff    time.Duration
	log        *slog.Logger
}

// New creates a Fetcher that tries a direct connection first and rotating
// proxies second. Without configured proxies only the direct path exists.
func New(rot *proxy.Rotator, log *slog.Logger) *Fetcher {
	strategies := []Strategy{Direct()}
	if rot.Len() > 0 {
		strategies = append(strategies, Proxied("proxy", rot))
	}
	return NewWithStrategies(strategies, log)
}

// NewWithStrategies creates a Fetcher with a custom strategy chain (useful
// for testing).
func NewWithStrategies(strategies []Strategy, log *slog.Logger) *Fetcher {
	return &Fetcher{strategies: strategies, backoff: retryBackoff, log: log}
}

// SetRetryBackoff overrides the default retry backoff (useful for testing).
func (f *Fetcher) SetRetryBackoff(d time.Duration) {
	f.backoff = d
}

// Fetch returns the body of the page at rawURL, trying each strategy in
// sequence and returning the first non-empty result. Each strategy gets one
// retry with a constant backoff before the chain moves on.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	var errs []error
	for _, s := range f.strategies {
		var body string
		err := retry.Do(ctx, retry.WithMaxRetries(1, retry.NewConstant(f.backoff)), func(ctx context.Context) error {
			b, err := f.attempt(ctx, s, rawURL)
			if err != nil {
				return retry.RetryableError(err)
			}
			body = b
			return nil
		})
		if err == nil {
			return body, nil
		}
		f.log.Warn("fetch strategy failed", "strategy", s.Name, "url", rawURL, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
	}
	return "", fmt.Errorf("%w: %w", ErrExhausted, errors.Join(errs...))
}

// attempt performs a single fetch through one strategy, following 301/302
// redirects by resolving Location against the request URL, up to
// maxRedirects hops.
func (f *Fetcher) attempt(ctx context.Context, s Strategy, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, attemptTimeout)
	defer cancel()

	current := rawURL
	for hop := 0; hop <= maxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		setBrowserHeaders(req)

		resp, err := s.Client.Do(req)
		if err != nil {
			return "", fmt.Errorf("http get: %w", err)
		}

		if resp.StatusCode == http.StatusMovedPermanently || resp.StatusCode == http.StatusFound {
			loc := resp.Header.Get("Location")
			_ = resp.Body.Close()
			if loc == "" {
				return "", errors.New("redirect without location header")
			}
			next, err := req.URL.Parse(loc)
			if err != nil {
				return "", fmt.Errorf("resolve redirect %q: %w", loc, err)
			}
			current = next.String()
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		_ = resp.Body.Close()
		if err != nil {
			return "", fmt.Errorf("read body: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		if len(bytes.TrimSpace(body)) == 0 {
			return "", errors.New("empty response body")
		}
		return string(body), nil
	}
	return "", fmt.Errorf("redirect limit exceeded (%d)", maxRedirects)
}

// setBrowserHeaders makes the request look like a regular Austrian browser
// session; the site serves bot-detection pages otherwise.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-AT,de;q=0.9,en;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
}
