// Package store owns the in-memory vehicle snapshot cache, the new-listing
// set, and the push-recipient registry. It is the only shared mutable state
// in the service: the scrape pipeline writes, the API reads copies.
package store

import (
	"sort"
	"sync"
	"time"

	"willhaben_watch/internal/model"
)

const defaultRetention = 1000

// Stats is a point-in-time summary for the health endpoint.
type Stats struct {
	TotalVehicles  int
	NewVehicles    int
	Recipients     int
	LastScrapeTime *time.Time
}

// Store holds the latest known vehicle snapshot keyed by id.
type Store struct {
	mu         sync.RWMutex
	vehicles   map[string]model.Vehicle
	newIDs     map[string]struct{}
	recipients map[string]struct{}
	lastScrape *time.Time
	seeded     bool
	retention  int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		vehicles:   make(map[string]model.Vehicle),
		newIDs:     make(map[string]struct{}),
		recipients: make(map[string]struct{}),
		retention:  defaultRetention,
	}
}

// SetRetention overrides the default retention cap (useful for testing).
func (s *Store) SetRetention(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retention = n
}

// Admit inserts candidates whose id is not yet cached and returns the newly
// admitted records. The very first batch since process start seeds the cache
// silently: nothing is flagged new and nothing is returned, so startup never
// causes a notification storm. Admit always records the scrape time, even
// for an empty batch.
func (s *Store) Admit(candidates []model.Candidate, now time.Time) []model.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fresh []model.Vehicle
	for _, c := range candidates {
		if _, ok := s.vehicles[c.ID]; ok {
			continue
		}
		v := c.Vehicle(now, s.seeded)
		s.vehicles[c.ID] = v
		if s.seeded {
			s.newIDs[c.ID] = struct{}{}
			fresh = append(fresh, v)
		}
	}

	t := now
	s.lastScrape = &t
	s.seeded = true
	s.evictLocked()
	return fresh
}

// evictLocked drops the oldest-first-seen records once the cache exceeds the
// retention cap.
func (s *Store) evictLocked() {
	excess := len(s.vehicles) - s.retention
	if excess <= 0 {
		return
	}
	all := make([]model.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].FirstSeenAt.Before(all[j].FirstSeenAt) })
	for _, v := range all[:excess] {
		delete(s.vehicles, v.ID)
		delete(s.newIDs, v.ID)
	}
}

// ListCurrent returns up to limit private-seller records, newest first, plus
// the last scrape time. The slice is a copy and never nil.
func (s *Store) ListCurrent(limit int) ([]model.Vehicle, *time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		if v.IsPrivate {
			out = append(out, v)
		}
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, s.lastScrapeLocked()
}

// ListNew returns the records currently flagged new, newest first.
func (s *Store) ListNew() []model.Vehicle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Vehicle, 0, len(s.newIDs))
	for id := range s.newIDs {
		if v, ok := s.vehicles[id]; ok {
			out = append(out, v)
		}
	}
	sortNewestFirst(out)
	return out
}

// AcknowledgeAll flips every new record to seen and clears the new set.
// This is the only path a record's isNew flag takes from true to false.
func (s *Store) AcknowledgeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.newIDs {
		if v, ok := s.vehicles[id]; ok {
			v.IsNew = false
			s.vehicles[id] = v
		}
	}
	s.newIDs = make(map[string]struct{})
}

// AddRecipient registers a push recipient token.
func (s *Store) AddRecipient(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[token] = struct{}{}
}

// RemoveRecipient drops a recipient, typically after the push service
// reported its device as unregistered.
func (s *Store) RemoveRecipient(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recipients, token)
}

// Recipients returns the registered recipient tokens.
func (s *Store) Recipients() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.recipients))
	for t := range s.recipients {
		out = append(out, t)
	}
	return out
}

// Stats returns counts for the health endpoint.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalVehicles:  len(s.vehicles),
		NewVehicles:    len(s.newIDs),
		Recipients:     len(s.recipients),
		LastScrapeTime: s.lastScrapeLocked(),
	}
}

func (s *Store) lastScrapeLocked() *time.Time {
	if s.lastScrape == nil {
		return nil
	}
	t := *s.lastScrape
	return &t
}

func sortNewestFirst(vehicles []model.Vehicle) {
	sort.SliceStable(vehicles, func(i, j int) bool {
		return vehicles[i].FirstSeenAt.After(vehicles[j].FirstSeenAt)
	})
}
