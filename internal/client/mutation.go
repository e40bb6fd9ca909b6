package client

import (
	"context"
	"errors"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/store"
)

// Mutator is the write side of API used by MutationService.
type Mutator interface {
	CreateEvent(ctx context.Context, input application.EventInput) (application.Event, error)
	UpdateEvent(ctx context.Context, id string, input application.EventInput) (application.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	UploadEvents(ctx context.Context, entries []application.EventInput) ([]application.Event, error)
}

// Result is the outcome of a mutation. FieldErrors is set for validation
// failures, whether detected locally or reported by the server.
type Result struct {
	OK          bool
	Event       application.Event
	Events      []application.Event
	FieldErrors map[string]string
	Err         error
}

// MutationService validates forms locally, sends them to the server and
// applies confirmed changes to the store.
type MutationService struct {
	api   Mutator
	store *store.EventStore
}

func NewMutationService(api Mutator, events *store.EventStore) *MutationService {
	return &MutationService{api: api, store: events}
}

func (s *MutationService) Create(ctx context.Context, input application.EventInput) Result {
	if _, err := application.ValidateEventInput(input); err != nil {
		return failure(err)
	}
	event, err := s.api.CreateEvent(ctx, input)
	if err != nil {
		return failure(err)
	}
	s.store.Upsert(event)
	return Result{OK: true, Event: event}
}

// Update edits the stored event behind id. Occurrence ids address their series.
func (s *MutationService) Update(ctx context.Context, id string, input application.EventInput) Result {
	if _, err := application.ValidateEventInput(input); err != nil {
		return failure(err)
	}
	id = seriesOf(s.store, id)
	event, err := s.api.UpdateEvent(ctx, id, input)
	if err != nil {
		return failure(err)
	}
	s.dropSeries(id)
	s.store.Upsert(event)
	return Result{OK: true, Event: event}
}

func (s *MutationService) Delete(ctx context.Context, id string) Result {
	id = seriesOf(s.store, id)
	if err := s.api.DeleteEvent(ctx, id); err != nil {
		return failure(err)
	}
	s.dropSeries(id)
	return Result{OK: true}
}

// Upload validates nothing locally; the server skips malformed entries.
func (s *MutationService) Upload(ctx context.Context, entries []application.EventInput) Result {
	events, err := s.api.UploadEvents(ctx, entries)
	if err != nil {
		return failure(err)
	}
	for _, e := range events {
		s.store.Upsert(e)
	}
	return Result{OK: true, Events: events}
}

func (s *MutationService) dropSeries(id string) {
	s.store.Remove(id)
	for _, e := range s.store.All() {
		if e.SeriesID == id {
			s.store.Remove(e.ID)
		}
	}
}

func seriesOf(events *store.EventStore, id string) string {
	if e, ok := events.Get(id); ok && e.SeriesID != "" {
		return e.SeriesID
	}
	return id
}

func failure(err error) Result {
	result := Result{Err: err}
	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		result.FieldErrors = vErr.FieldErrors
	}
	return result
}
