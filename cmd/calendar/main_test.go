package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
	"github.com/example/calendar-service/internal/config"
	"github.com/example/calendar-service/internal/persistence/memory"
	"github.com/example/calendar-service/internal/store"
	"github.com/example/calendar-service/internal/testfixtures"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Storage = config.StorageMemory
	cfg.JWTSecret = testfixtures.TestJWTSecret
	cfg.GoogleClientID = "client-id"
	cfg.RateLimit = 0
	return cfg
}

func TestServiceEndToEnd(t *testing.T) {
	t.Parallel()

	alice := testfixtures.NewUserFixture()
	clock := testfixtures.NewClock(testfixtures.ReferenceTime())
	app, err := newService(testConfig(), memory.Open(), testfixtures.NewGoogleStub(alice), nil, clock.NowFunc(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(app.activity.Wait)

	server := httptest.NewServer(app.handler)
	t.Cleanup(server.Close)

	call := func(method, path, token string, body any) *http.Response {
		t.Helper()
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequest(method, server.URL+path, reader)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := server.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := call(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = call(http.MethodGet, "/api/events", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = call(http.MethodPost, "/api/auth/google", "", map[string]string{"token": "token-" + alice.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var signIn struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&signIn))
	require.NotEmpty(t, signIn.Token)

	resp = call(http.MethodPost, "/api/events", signIn.Token, testfixtures.NewEventFixture(alice.ID, testfixtures.WithEventTitle("Standup")).Input())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = call(http.MethodGet, "/api/events?startDate=2024-06-01&endDate=2024-06-30", signIn.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Events []struct {
			Title string `json:"title"`
		} `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Events, 1)
	assert.Equal(t, "Standup", list.Events[0].Title)

	resp = call(http.MethodGet, "/api/users", signIn.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestServiceCORSPreflight(t *testing.T) {
	t.Parallel()

	app, err := newService(testConfig(), memory.Open(), testfixtures.NewGoogleStub(), nil, time.Now, discardLogger())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/events", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewServiceRejectsShortSecret(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.JWTSecret = "short"
	_, err := newService(cfg, memory.Open(), testfixtures.NewGoogleStub(), nil, time.Now, discardLogger())
	assert.Error(t, err)
}

func TestNewLimiter(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	limiter, closeFn, err := newLimiter(cfg, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, limiter)
	closeFn()

	cfg.RateLimit = 5
	limiter, closeFn, err = newLimiter(cfg, discardLogger())
	require.NoError(t, err)
	defer closeFn()
	require.NotNil(t, limiter)

	decision, err := limiter.Allow(context.Background(), "client")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 4, decision.Remaining)
}

func TestOpenStorageMemory(t *testing.T) {
	t.Parallel()

	storage, err := openStorage(context.Background(), testConfig(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	assert.NoError(t, storage.Ping(context.Background()))
}

func TestDecodeEntries(t *testing.T) {
	t.Parallel()

	t.Run("json array", func(t *testing.T) {
		t.Parallel()

		entries, err := decodeEntries(strings.NewReader(`[{"title":"A","startDate":"2024-06-10","endDate":"2024-06-10"}]`), ".json")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "A", entries[0].Title)
	})

	t.Run("wrapped json", func(t *testing.T) {
		t.Parallel()

		entries, err := decodeEntries(strings.NewReader(`{"events":[{"title":"A"},{"title":"B"}]}`), ".json")
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("icalendar", func(t *testing.T) {
		t.Parallel()

		ical := strings.Join([]string{
			"BEGIN:VCALENDAR",
			"VERSION:2.0",
			"PRODID:-//test//EN",
			"BEGIN:VEVENT",
			"UID:1",
			"SUMMARY:Review",
			"DTSTART:20240610T140000",
			"DTEND:20240610T150000",
			"END:VEVENT",
			"END:VCALENDAR",
			"",
		}, "\r\n")
		entries, err := decodeEntries(strings.NewReader(ical), ".ics")
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "Review", entries[0].Title)
		assert.Equal(t, "2024-06-10", entries[0].StartDate)
		assert.Equal(t, "14:00", entries[0].StartTime)
	})

	t.Run("malformed json", func(t *testing.T) {
		t.Parallel()

		_, err := decodeEntries(strings.NewReader(`{"events":`), ".json")
		assert.Error(t, err)
	})
}

func TestUploadAs(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewMemoryHarness(t)
	active := testfixtures.NewUserFixture()
	inactive := testfixtures.NewUserFixture(testfixtures.WithUserInactive())
	harness.SeedUsers(t, active, inactive)

	factory := testfixtures.NewServiceFactory(harness)
	activity := factory.NewActivityLogger()
	t.Cleanup(activity.Wait)
	events := factory.NewEventService(activity)

	entries := []application.EventInput{
		testfixtures.NewEventFixture(active.ID).Input(),
		{Title: "missing dates"},
	}

	result, err := uploadAs(context.Background(), harness.Repo, events, active.ID, entries)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, 1, result.Skipped)

	_, err = uploadAs(context.Background(), harness.Repo, events, inactive.ID, entries)
	assert.Error(t, err)

	_, err = uploadAs(context.Background(), harness.Repo, events, "nobody", entries)
	assert.Error(t, err)
}

func TestParseAgendaView(t *testing.T) {
	t.Parallel()

	now := testfixtures.ReferenceTime()

	view, err := parseAgendaView("", "", "", now)
	require.NoError(t, err)
	assert.Equal(t, calendar.MustDate("2024-06-01"), view.month)
	assert.Nil(t, view.day)

	view, err = parseAgendaView("2024-02", "", "", now)
	require.NoError(t, err)
	assert.Equal(t, calendar.MustDate("2024-02-01"), view.month)

	view, err = parseAgendaView("", "2024-03-15", "", now)
	require.NoError(t, err)
	require.NotNil(t, view.day)
	assert.Equal(t, calendar.MustDate("2024-03-01"), view.month)

	_, err = parseAgendaView("2024-13", "", "", now)
	assert.Error(t, err)
	_, err = parseAgendaView("", "15/03/2024", "", now)
	assert.Error(t, err)

	view, err = parseAgendaView("", "", "2024", now)
	require.NoError(t, err)
	assert.Equal(t, 2024, view.year)
	assert.Equal(t, calendar.YearWindow(2024), view.window())

	_, err = parseAgendaView("", "", "24", now)
	assert.Error(t, err)
	_, err = parseAgendaView("2024-02", "", "2024", now)
	assert.Error(t, err)
}

func TestAgendaRender(t *testing.T) {
	t.Parallel()

	day := calendar.MustDate("2024-06-12")
	events := store.NewEventStore()
	events.ReplaceAll([]application.Event{
		{ID: "a", Title: "Breakfast", StartDate: day, EndDate: day, StartTime: "08:00", EndTime: "09:00"},
		{ID: "b", Title: "Lunch", StartDate: day, EndDate: day, StartTime: "12:00", EndTime: "13:00"},
		{ID: "c", Title: "Dinner", StartDate: day, EndDate: day, StartTime: "19:00", EndTime: "20:00"},
		{ID: "d", Title: "Trip", StartDate: day, EndDate: day.AddDays(2)},
	})
	now := testfixtures.ReferenceTime()

	var month bytes.Buffer
	agendaView{month: day.StartOfMonth()}.render(&month, events, now)
	out := month.String()
	assert.True(t, strings.HasPrefix(out, "June 2024\n"))
	assert.Contains(t, out, "Wed 2024-06-12\n")
	assert.Contains(t, out, "  +1 more\n")
	assert.Contains(t, out, "== Trip (2024-06-12..2024-06-14)")
	assert.NotContains(t, out, "Dinner")

	var single bytes.Buffer
	agendaView{month: day.StartOfMonth(), day: &day}.render(&single, events, now)
	assert.Contains(t, single.String(), "Dinner")
	assert.NotContains(t, single.String(), "more")
}

func TestAgendaRenderYear(t *testing.T) {
	t.Parallel()

	events := store.NewEventStore()
	events.ReplaceAll([]application.Event{
		{ID: "a", Title: "Review", StartDate: calendar.MustDate("2024-03-05"), EndDate: calendar.MustDate("2024-03-05"), StartTime: "10:00", EndTime: "11:00"},
		{ID: "b", Title: "Retro", StartDate: calendar.MustDate("2024-03-05"), EndDate: calendar.MustDate("2024-03-05"), StartTime: "15:00", EndTime: "16:00"},
		{ID: "c", Title: "Offsite", StartDate: calendar.MustDate("2024-03-30"), EndDate: calendar.MustDate("2024-04-02")},
	})
	now := testfixtures.ReferenceTime()

	var buf bytes.Buffer
	agendaView{year: 2024}.render(&buf, events, now)
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "2024\n"))
	for m := time.January; m <= time.December; m++ {
		assert.Contains(t, out, "\n"+m.String()+"\n")
	}
	assert.Contains(t, out, "  days 5:2 30:1 31:1\n  4 events\n")
	assert.Contains(t, out, "  days 1:1 2:1\n  2 events\n")
	assert.Contains(t, out, "  5*")
	assert.Contains(t, out, " 10<")
	assert.Equal(t, 10, strings.Count(out, "  0 events\n"))
}

func TestImportRequiresTarget(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run([]string{"calendar", "import"})
	assert.Error(t, err)
}
