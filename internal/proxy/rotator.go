// Package proxy supplies outbound proxy identities in round-robin order.
package proxy

import (
	"net/url"
	"sync"
)

// Rotator hands out proxy URLs one per request attempt, wrapping at the end
// of the list. An empty rotator yields nil, which callers treat as a direct
// (unproxied) connection.
type Rotator struct {
	mu      sync.Mutex
	proxies []*url.URL
	next    int
}

// NewRotator creates a Rotator over the given proxy URLs.
func NewRotator(proxies []*url.URL) *Rotator {
	return &Rotator{proxies: proxies}
}

// Next returns the next proxy in rotation, or nil if none are configured.
// Safe for concurrent use; API-triggered scrapes may race the scrape loop's
// own fetch attempts.
func (r *Rotator) Next() *url.URL {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return nil
	}
	u := r.proxies[r.next]
	r.next = (r.next + 1) % len(r.proxies)
	return u
}

// Len reports how many proxies are configured.
func (r *Rotator) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.proxies)
}
