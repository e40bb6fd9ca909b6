// Package client talks to the calendar REST API and keeps the fetched month
// in a local store.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
)

// ErrAuth is returned when the server rejects the session token.
var ErrAuth = errors.New("client: authentication required")

// UpstreamError reports a transport failure or an unexpected server response.
// Status is zero when no response was received.
type UpstreamError struct {
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Err != nil:
		return fmt.Sprintf("client: upstream failure: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("client: upstream status %d: %s", e.Status, e.Message)
	default:
		return fmt.Sprintf("client: upstream status %d", e.Status)
	}
}

func (e *UpstreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

const defaultTimeout = 15 * time.Second

// API is a typed client for the /api event endpoints.
type API struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewAPI builds a client for the server at baseURL authenticating with token.
// A nil httpClient selects one with a 15 second timeout.
func NewAPI(baseURL, token string, httpClient *http.Client) (*API, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("client: invalid base url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &API{base: base, token: strings.TrimSpace(token), http: httpClient}, nil
}

// ListEvents returns the caller's events overlapping window. With expand,
// recurring events are returned as occurrences.
func (a *API) ListEvents(ctx context.Context, window calendar.Range, expand bool) ([]application.Event, error) {
	query := url.Values{}
	query.Set("startDate", window.Start.String())
	query.Set("endDate", window.End.String())
	if expand {
		query.Set("expand", "true")
	}

	var resp struct {
		Events []wireEvent `json:"events"`
	}
	if err := a.do(ctx, http.MethodGet, "/api/events", query, nil, &resp); err != nil {
		return nil, err
	}
	return fromWireEvents(resp.Events)
}

func (a *API) CreateEvent(ctx context.Context, input application.EventInput) (application.Event, error) {
	var resp struct {
		Event wireEvent `json:"event"`
	}
	if err := a.do(ctx, http.MethodPost, "/api/events", nil, input, &resp); err != nil {
		return application.Event{}, err
	}
	return resp.Event.toEvent()
}

func (a *API) UpdateEvent(ctx context.Context, id string, input application.EventInput) (application.Event, error) {
	var resp struct {
		Event wireEvent `json:"event"`
	}
	if err := a.do(ctx, http.MethodPut, "/api/events/"+url.PathEscape(id), nil, input, &resp); err != nil {
		return application.Event{}, err
	}
	return resp.Event.toEvent()
}

func (a *API) DeleteEvent(ctx context.Context, id string) error {
	return a.do(ctx, http.MethodDelete, "/api/events/"+url.PathEscape(id), nil, nil, nil)
}

// UploadEvents bulk-creates entries and returns the stored events.
func (a *API) UploadEvents(ctx context.Context, entries []application.EventInput) ([]application.Event, error) {
	if entries == nil {
		entries = []application.EventInput{}
	}
	var resp struct {
		Count  int         `json:"count"`
		Events []wireEvent `json:"events"`
	}
	body := struct {
		Events []application.EventInput `json:"events"`
	}{Events: entries}
	if err := a.do(ctx, http.MethodPost, "/api/events/upload", nil, body, &resp); err != nil {
		return nil, err
	}
	return fromWireEvents(resp.Events)
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := *a.base
	target.Path = strings.TrimRight(a.base.Path, "/") + path
	if query != nil {
		target.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return &UpstreamError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return &UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return &UpstreamError{Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return &UpstreamError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}
	return responseError(resp.StatusCode, raw)
}

type errorEnvelope struct {
	ErrorCode string            `json:"errorCode"`
	Message   string            `json:"message"`
	Errors    map[string]string `json:"errors"`
}

func responseError(status int, raw []byte) error {
	var envelope errorEnvelope
	_ = json.Unmarshal(raw, &envelope)

	switch status {
	case http.StatusBadRequest:
		fields := envelope.Errors
		if len(fields) == 0 {
			message := envelope.Message
			if message == "" {
				message = http.StatusText(status)
			}
			fields = map[string]string{"form": message}
		}
		return &application.ValidationError{FieldErrors: fields}
	case http.StatusUnauthorized:
		return ErrAuth
	case http.StatusNotFound:
		return application.ErrNotFound
	default:
		return &UpstreamError{Status: status, Message: envelope.Message}
	}
}

type wireRepeat struct {
	Type     string `json:"type"`
	Weekdays []int  `json:"weekdays,omitempty"`
}

type wireEvent struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	StartDate   string     `json:"startDate"`
	EndDate     string     `json:"endDate"`
	StartTime   string     `json:"startTime"`
	EndTime     string     `json:"endTime"`
	Duration    int        `json:"duration"`
	Group       string     `json:"group"`
	Repeat      wireRepeat `json:"repeat"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	SeriesID    string     `json:"seriesId"`
}

func (w wireEvent) toEvent() (application.Event, error) {
	start, err := calendar.ParseDate(w.StartDate)
	if err != nil {
		return application.Event{}, &UpstreamError{Err: fmt.Errorf("event %s: %w", w.ID, err)}
	}
	end, err := calendar.ParseDate(w.EndDate)
	if err != nil {
		return application.Event{}, &UpstreamError{Err: fmt.Errorf("event %s: %w", w.ID, err)}
	}
	return application.Event{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		StartDate:   start,
		EndDate:     end,
		StartTime:   w.StartTime,
		EndTime:     w.EndTime,
		Duration:    w.Duration,
		Group:       w.Group,
		Repeat:      application.Repeat{Type: application.RepeatType(w.Repeat.Type), Weekdays: w.Repeat.Weekdays},
		Active:      true,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
		SeriesID:    w.SeriesID,
	}, nil
}

func fromWireEvents(in []wireEvent) ([]application.Event, error) {
	out := make([]application.Event, 0, len(in))
	for _, w := range in {
		e, err := w.toEvent()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
