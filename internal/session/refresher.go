package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"talk2me/internal/observability"
)

// DefaultRefreshInterval sits comfortably inside the server's 30 minute
// access-token lifetime.
const DefaultRefreshInterval = 25 * time.Minute

// Refresher runs a refresh function after a fixed delay and, if it succeeds,
// schedules the next run. At most one run is pending at a time.
type Refresher struct {
	mu       sync.Mutex
	interval time.Duration
	refresh  func(ctx context.Context) error
	timer    *time.Timer
	gen      uint64
}

func NewRefresher(interval time.Duration, refresh func(ctx context.Context) error) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{interval: interval, refresh: refresh}
}

// Start cancels any pending run and schedules a new one.
func (r *Refresher) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLocked()
	r.scheduleLocked()
}

// Stop cancels the pending run, if any. A refresh already in flight is not
// interrupted, but it will not schedule a successor.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelLocked()
}

// Pending reports whether a run is scheduled.
func (r *Refresher) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

func (r *Refresher) Interval() time.Duration {
	return r.interval
}

func (r *Refresher) cancelLocked() {
	r.gen++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Refresher) scheduleLocked() {
	gen := r.gen
	r.timer = time.AfterFunc(r.interval, func() {
		r.fire(gen)
	})
}

func (r *Refresher) fire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return
	}
	r.timer = nil
	r.mu.Unlock()

	err := r.refresh(context.Background())

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		slog.Error("scheduled token refresh failed, auto-refresh stopped",
			slog.String("error", err.Error()))
		observability.ClientTokenRefreshTotal.WithLabelValues("scheduled_failure").Inc()
		return
	}

	observability.ClientTokenRefreshTotal.WithLabelValues("scheduled_success").Inc()

	// Stop or Start was called while the refresh was in flight.
	if gen != r.gen {
		return
	}
	r.scheduleLocked()
}
