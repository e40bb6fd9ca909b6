package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
	"github.com/example/calendar-service/internal/store"
)

// EventLister is the read side of API used by RangeFetcher.
type EventLister interface {
	ListEvents(ctx context.Context, window calendar.Range, expand bool) ([]application.Event, error)
}

// Status describes the outcome of the latest fetch.
type Status struct {
	Window    calendar.Range
	FetchedAt time.Time
	// Stale is set when the latest fetch failed and the store still holds an
	// earlier window.
	Stale bool
	Err   error
}

// RangeFetcher loads the padded window around a month into an EventStore.
type RangeFetcher struct {
	api    EventLister
	store  *store.EventStore
	now    func() time.Time
	logger *slog.Logger

	mu     sync.RWMutex
	status Status
}

func NewRangeFetcher(api EventLister, events *store.EventStore, now func() time.Time, logger *slog.Logger) *RangeFetcher {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RangeFetcher{api: api, store: events, now: now, logger: logger}
}

// Fetch replaces the store with the expanded events of calendar.FetchWindow(month).
// On failure the store is left untouched and the status is marked stale. It
// does not retry.
func (f *RangeFetcher) Fetch(ctx context.Context, month calendar.Date) error {
	return f.FetchRange(ctx, calendar.FetchWindow(month))
}

// FetchRange is Fetch for an explicit window.
func (f *RangeFetcher) FetchRange(ctx context.Context, window calendar.Range) error {
	logger := f.logger.With("component", "RangeFetcher", "window_start", window.Start.String(), "window_end", window.End.String())

	events, err := f.api.ListEvents(ctx, window, true)
	if err != nil {
		logger.WarnContext(ctx, "event fetch failed", "error", err)
		f.mu.Lock()
		f.status.Stale = true
		f.status.Err = err
		f.mu.Unlock()
		return err
	}

	f.store.ReplaceAll(events)
	f.mu.Lock()
	f.status = Status{Window: window, FetchedAt: f.now()}
	f.mu.Unlock()
	logger.DebugContext(ctx, "events fetched", "count", len(events))
	return nil
}

// Status returns the outcome of the latest fetch.
func (f *RangeFetcher) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}
