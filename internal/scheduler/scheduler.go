// Package scheduler drives the fetch→extract→admit→notify pipeline on a
// variable-interval timer and guarantees that at most one scrape cycle runs
// at a time, no matter how it was triggered.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"willhaben_watch/internal/extractor"
	"willhaben_watch/internal/model"
	"willhaben_watch/internal/store"
)

// Polling intervals. Daytime polling approximates near-real-time monitoring;
// the night window backs off hard. Jitter keeps the request pattern from
// being perfectly periodic.
const (
	dayInterval   = 2 * time.Second
	dayJitter     = 3 * time.Second
	nightInterval = 40 * time.Minute
	nightJitter   = 5 * time.Minute
)

// Fetcher retrieves raw page content for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Dispatcher pushes newly found vehicles to registered recipients.
type Dispatcher interface {
	Dispatch(ctx context.Context, vehicles []model.Vehicle) error
}

// Result is the outcome of one scrape cycle.
type Result struct {
	NewCount       int
	TotalVehicles  int
	LastScrapeTime *time.Time
}

type inflightCycle struct {
	done   chan struct{}
	result Result
}

// Scheduler owns the scrape loop.
type Scheduler struct {
	store      *store.Store
	fetcher    Fetcher
	extractor  *extractor.Extractor
	dispatcher Dispatcher
	searchURL  string
	log        *slog.Logger

	mu       sync.Mutex
	inflight *inflightCycle
}

// New creates a Scheduler.
func New(st *store.Store, f Fetcher, ex *extractor.Extractor, d Dispatcher, searchURL string, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:      st,
		fetcher:    f,
		extractor:  ex,
		dispatcher: d,
		searchURL:  searchURL,
		log:        log,
	}
}

// Run executes the first cycle immediately, then keeps rescheduling itself
// with a freshly computed delay until ctx is cancelled. The delay is
// computed only after a cycle fully resolves, so a slow fetch chain delays
// the next cycle rather than overlapping it.
func (s *Scheduler) Run(ctx context.Context) {
	s.RunOnce(ctx)

	for {
		delay := nextDelay(time.Now())
		s.log.Debug("next scrape scheduled", "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes one scrape cycle. If a cycle is already in flight the
// call joins it: it waits for that cycle to finish and returns its result
// instead of starting a concurrent duplicate.
func (s *Scheduler) RunOnce(ctx context.Context) Result {
	s.mu.Lock()
	if c := s.inflight; c != nil {
		s.mu.Unlock()
		select {
		case <-c.done:
			return c.result
		case <-ctx.Done():
			return s.snapshotResult()
		}
	}
	c := &inflightCycle{done: make(chan struct{})}
	s.inflight = c
	s.mu.Unlock()

	c.result = s.cycle(ctx)

	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()
	close(c.done)
	return c.result
}

// InFlight reports whether a scrape cycle is currently executing.
func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight != nil
}

func (s *Scheduler) cycle(ctx context.Context) Result {
	var candidates []model.Candidate
	html, err := s.fetcher.Fetch(ctx, s.searchURL)
	if err != nil {
		// A failed fetch yields an empty batch; the loop schedules the
		// next cycle normally.
		s.log.Error("fetch page", "url", s.searchURL, "error", err)
	} else {
		candidates = s.extractor.Parse(html)
	}

	fresh := s.store.Admit(candidates, time.Now().UTC())
	if len(fresh) > 0 {
		s.log.Info("new vehicles found", "count", len(fresh))
		if err := s.dispatcher.Dispatch(ctx, fresh); err != nil {
			s.log.Error("dispatch notifications", "error", err)
		}
	}

	stats := s.store.Stats()
	return Result{
		NewCount:       len(fresh),
		TotalVehicles:  stats.TotalVehicles,
		LastScrapeTime: stats.LastScrapeTime,
	}
}

// snapshotResult reports current totals without running a cycle, used when a
// joining caller's context ends before the in-flight cycle does.
func (s *Scheduler) snapshotResult() Result {
	stats := s.store.Stats()
	return Result{
		TotalVehicles:  stats.TotalVehicles,
		LastScrapeTime: stats.LastScrapeTime,
	}
}

// nextDelay computes the pause before the next cycle from the wall clock.
// The night window (23:00 through 05:44) polls roughly every 40 minutes;
// daytime polls every few seconds.
func nextDelay(now time.Time) time.Duration {
	h, m := now.Hour(), now.Minute()
	night := h == 23 || h < 5 || (h == 5 && m < 45)
	if night {
		return nightInterval + rand.N(nightJitter)
	}
	return dayInterval + rand.N(dayJitter)
}
