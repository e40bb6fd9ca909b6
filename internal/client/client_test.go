package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
	"github.com/example/calendar-service/internal/store"
)

const standup = `{"id":"e1","title":"Standup","startDate":"2024-06-10","endDate":"2024-06-10","startTime":"09:00","endTime":"09:15","duration":15,"repeat":{"type":"none"},"createdAt":"2024-06-01T00:00:00Z"}`

func newServer(t *testing.T, handler http.HandlerFunc) *API {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	api, err := NewAPI(server.URL, "secret-token", server.Client())
	require.NoError(t, err)
	return api
}

func TestNewAPIRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := NewAPI("localhost:8080", "", nil)
	assert.Error(t, err)
}

func TestListEvents(t *testing.T) {
	t.Parallel()

	api := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/events", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2024-05-25", r.URL.Query().Get("startDate"))
		assert.Equal(t, "2024-07-07", r.URL.Query().Get("endDate"))
		assert.Equal(t, "true", r.URL.Query().Get("expand"))
		_, _ = w.Write([]byte(`{"events":[` + standup + `]}`))
	})

	events, err := api.ListEvents(context.Background(), calendar.FetchWindow(calendar.MustDate("2024-06-15")), true)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "Standup", events[0].Title)
	assert.Equal(t, calendar.MustDate("2024-06-10"), events[0].StartDate)
	assert.Equal(t, 15, events[0].Duration)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), events[0].CreatedAt)
}

func TestErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "validation",
			status: http.StatusBadRequest,
			body:   `{"errorCode":"VALIDATION_FAILED","message":"bad","errors":{"title":"title is required"}}`,
			check: func(t *testing.T, err error) {
				var vErr *application.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, "title is required", vErr.FieldErrors["title"])
			},
		},
		{
			name:   "bad request without fields",
			status: http.StatusBadRequest,
			body:   `{"errorCode":"BAD_REQUEST","message":"Invalid request body."}`,
			check: func(t *testing.T, err error) {
				var vErr *application.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, "Invalid request body.", vErr.FieldErrors["form"])
			},
		},
		{
			name:   "auth",
			status: http.StatusUnauthorized,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrAuth) },
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, application.ErrNotFound) },
		},
		{
			name:   "server failure",
			status: http.StatusInternalServerError,
			body:   `{"errorCode":"UPSTREAM_FAILURE","message":"Something went wrong. Please try again."}`,
			check: func(t *testing.T, err error) {
				var upErr *UpstreamError
				require.ErrorAs(t, err, &upErr)
				assert.Equal(t, http.StatusInternalServerError, upErr.Status)
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			err := api.DeleteEvent(context.Background(), "e1")
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestTransportFailureIsUpstream(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	api, err := NewAPI(server.URL, "", server.Client())
	require.NoError(t, err)
	server.Close()

	_, err = api.CreateEvent(context.Background(), application.EventInput{Title: "x"})
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Zero(t, upErr.Status)
}

type listerStub struct {
	events []application.Event
	err    error
	calls  int
}

func (l *listerStub) ListEvents(context.Context, calendar.Range, bool) ([]application.Event, error) {
	l.calls++
	return l.events, l.err
}

func TestRangeFetcher(t *testing.T) {
	t.Parallel()

	events := store.NewEventStore()
	lister := &listerStub{events: []application.Event{{ID: "e1", Title: "Standup"}}}
	fetcher := NewRangeFetcher(lister, events, nil, nil)

	require.NoError(t, fetcher.Fetch(context.Background(), calendar.MustDate("2024-06-01")))
	assert.Equal(t, 1, events.Len())
	status := fetcher.Status()
	assert.False(t, status.Stale)
	assert.Equal(t, calendar.MustDate("2024-05-25"), status.Window.Start)

	lister.err = errors.New("offline")
	err := fetcher.Fetch(context.Background(), calendar.MustDate("2024-07-01"))
	require.Error(t, err)
	assert.Equal(t, 2, lister.calls, "no retry")
	assert.Equal(t, 1, events.Len(), "store kept on failure")

	status = fetcher.Status()
	assert.True(t, status.Stale)
	assert.Equal(t, err, status.Err)
	assert.Equal(t, calendar.MustDate("2024-05-25"), status.Window.Start)
}

func TestRangeFetcherYearWindow(t *testing.T) {
	t.Parallel()

	events := store.NewEventStore()
	lister := &listerStub{events: []application.Event{{ID: "e1", Title: "Standup"}}}
	fetcher := NewRangeFetcher(lister, events, nil, nil)

	require.NoError(t, fetcher.FetchRange(context.Background(), calendar.YearWindow(2024)))
	assert.Equal(t, calendar.YearWindow(2024), fetcher.Status().Window)
	assert.Equal(t, 1, events.Len())
}

type mutatorStub struct {
	calls     atomic.Int32
	err       error
	updatedID string
}

func (m *mutatorStub) CreateEvent(_ context.Context, input application.EventInput) (application.Event, error) {
	m.calls.Add(1)
	if m.err != nil {
		return application.Event{}, m.err
	}
	return application.Event{ID: "new", Title: input.Title}, nil
}

func (m *mutatorStub) UpdateEvent(_ context.Context, id string, input application.EventInput) (application.Event, error) {
	m.calls.Add(1)
	m.updatedID = id
	if m.err != nil {
		return application.Event{}, m.err
	}
	return application.Event{ID: id, Title: input.Title}, nil
}

func (m *mutatorStub) DeleteEvent(context.Context, string) error {
	m.calls.Add(1)
	return m.err
}

func (m *mutatorStub) UploadEvents(_ context.Context, entries []application.EventInput) ([]application.Event, error) {
	m.calls.Add(1)
	out := make([]application.Event, 0, len(entries))
	for i, e := range entries {
		out = append(out, application.Event{ID: string(rune('a' + i)), Title: e.Title})
	}
	return out, m.err
}

func validInput(title string) application.EventInput {
	return application.EventInput{Title: title, StartDate: "2024-06-10", EndDate: "2024-06-10", StartTime: "09:00", EndTime: "10:00"}
}

func TestMutationService(t *testing.T) {
	t.Parallel()

	t.Run("local validation skips the network", func(t *testing.T) {
		t.Parallel()

		api := &mutatorStub{}
		svc := NewMutationService(api, store.NewEventStore())
		result := svc.Create(context.Background(), application.EventInput{StartDate: "2024-06-10", EndDate: "2024-06-10"})

		assert.False(t, result.OK)
		assert.Contains(t, result.FieldErrors, "title")
		assert.Zero(t, api.calls.Load())
	})

	t.Run("store changes only after confirmation", func(t *testing.T) {
		t.Parallel()

		events := store.NewEventStore()
		api := &mutatorStub{err: &UpstreamError{Status: http.StatusInternalServerError}}
		svc := NewMutationService(api, events)

		result := svc.Create(context.Background(), validInput("Lunch"))
		assert.False(t, result.OK)
		assert.Error(t, result.Err)
		assert.Zero(t, events.Len())

		api.err = nil
		result = svc.Create(context.Background(), validInput("Lunch"))
		require.True(t, result.OK)
		got, ok := events.Get("new")
		require.True(t, ok)
		assert.Equal(t, "Lunch", got.Title)
	})

	t.Run("server validation errors surface as field errors", func(t *testing.T) {
		t.Parallel()

		api := &mutatorStub{err: application.NewValidationError("endDate", "endDate must not be before startDate")}
		result := NewMutationService(api, store.NewEventStore()).Update(context.Background(), "e1", validInput("Lunch"))
		assert.False(t, result.OK)
		assert.Equal(t, "endDate must not be before startDate", result.FieldErrors["endDate"])
	})

	t.Run("occurrences address their series", func(t *testing.T) {
		t.Parallel()

		events := store.NewEventStore()
		events.ReplaceAll([]application.Event{
			{ID: "s1@2024-06-10", SeriesID: "s1"},
			{ID: "s1@2024-06-17", SeriesID: "s1"},
			{ID: "other"},
		})
		api := &mutatorStub{}
		svc := NewMutationService(api, events)

		result := svc.Update(context.Background(), "s1@2024-06-17", validInput("Gym"))
		require.True(t, result.OK)
		assert.Equal(t, "s1", api.updatedID)
		_, ok := events.Get("s1@2024-06-10")
		assert.False(t, ok)
		_, ok = events.Get("s1")
		assert.True(t, ok)

		result = svc.Delete(context.Background(), "s1")
		require.True(t, result.OK)
		assert.Equal(t, 1, events.Len())
	})

	t.Run("upload adds confirmed events", func(t *testing.T) {
		t.Parallel()

		events := store.NewEventStore()
		result := NewMutationService(&mutatorStub{}, events).Upload(context.Background(), []application.EventInput{validInput("a"), validInput("b")})
		require.True(t, result.OK)
		assert.Len(t, result.Events, 2)
		assert.Equal(t, 2, events.Len())
	})
}

func TestUploadSendsEventsArray(t *testing.T) {
	t.Parallel()

	api := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, byte('['), body["events"][0])
		_, _ = w.Write([]byte(`{"message":"Successfully uploaded 1 events","count":1,"events":[` + standup + `]}`))
	})

	events, err := api.UploadEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
