package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/calendar-service/internal/application"
	"github.com/example/calendar-service/internal/calendar"
	"github.com/example/calendar-service/internal/ics"
)

type eventService interface {
	CreateEvent(ctx context.Context, params application.CreateEventParams) (application.Event, error)
	UpdateEvent(ctx context.Context, params application.UpdateEventParams) (application.Event, error)
	DeleteEvent(ctx context.Context, principal application.Principal, eventID string) error
	ListEvents(ctx context.Context, params application.ListEventsParams) ([]application.Event, error)
	UploadEvents(ctx context.Context, params application.UploadEventsParams) (application.UploadResult, error)
	SearchEvents(ctx context.Context, params application.SearchEventsParams) ([]application.Event, error)
	ExportEvents(ctx context.Context, principal application.Principal, window *calendar.Range) ([]application.Event, error)
	Agenda(ctx context.Context, principal application.Principal, date calendar.Date, view application.AgendaView) (application.Agenda, error)
	Notifications(ctx context.Context, principal application.Principal) ([]application.Notification, error)
}

// EventHandler serves the owner-scoped event endpoints.
type EventHandler struct {
	service   eventService
	responder responder
	logger    *slog.Logger
	now       func() time.Time
}

func NewEventHandler(service eventService, logger *slog.Logger) *EventHandler {
	return NewEventHandlerWithClock(service, logger, time.Now)
}

// NewEventHandlerWithClock allows the export timestamp to be fixed in tests.
func NewEventHandlerWithClock(service eventService, logger *slog.Logger, now func() time.Time) *EventHandler {
	base := defaultLogger(logger)
	if now == nil {
		now = time.Now
	}
	return &EventHandler{service: service, responder: newResponder(base), logger: base, now: now}
}

func (h *EventHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "EventHandler", operation, attrs...)
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	window, err := parseWindow(query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	events, err := h.service.ListEvents(r.Context(), application.ListEventsParams{
		Principal: principal,
		Window:    window,
		Expand:    parseBool(query.Get("expand")),
	})
	if err != nil {
		h.log(r.Context(), "List", "principal_id", principal.UserID).ErrorContext(r.Context(), "failed to list events", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, listEventsResponse{Events: toEventDTOs(events)})
}

func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var input application.EventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.log(r.Context(), "Create", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.CreateEvent(r.Context(), application.CreateEventParams{Principal: principal, Input: input})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Create", "event_id", event.ID).InfoContext(r.Context(), "event created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	var input application.EventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.log(r.Context(), "Update", "event_id", eventID, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode event", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	event, err := h.service.UpdateEvent(r.Context(), application.UpdateEventParams{
		Principal: principal,
		EventID:   eventID,
		Input:     input,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, eventResponse{Event: toEventDTO(event)})
}

func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	eventID, ok := EventIDFromContext(r.Context())
	if !ok || strings.TrimSpace(eventID) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidEventID)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	if err := h.service.DeleteEvent(r.Context(), principal, eventID); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, messageResponse{Message: "Event deleted successfully."})
}

// Upload bulk-creates events from {"events": [...]}. Entries that cannot be
// decoded are passed on empty so the service counts them as skipped.
func (h *EventHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	raw := bytes.TrimSpace(req.Events)
	if len(raw) == 0 || raw[0] != '[' {
		h.responder.handleServiceError(r.Context(), w, application.NewValidationError("events", "events must be an array"))
		return
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		h.responder.handleServiceError(r.Context(), w, application.NewValidationError("events", "events must be an array"))
		return
	}

	entries := make([]application.EventInput, 0, len(items))
	for _, item := range items {
		var entry application.EventInput
		if err := json.Unmarshal(item, &entry); err != nil {
			entry = application.EventInput{}
		}
		entries = append(entries, entry)
	}

	principal, _ := PrincipalFromContext(r.Context())
	result, err := h.service.UploadEvents(r.Context(), application.UploadEventsParams{Principal: principal, Entries: entries})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.log(r.Context(), "Upload", "principal_id", principal.UserID).InfoContext(r.Context(), "events uploaded",
		"count", result.Count,
		"skipped", result.Skipped,
	)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, uploadResponse{
		Message: fmt.Sprintf("Successfully uploaded %d events", result.Count),
		Count:   result.Count,
		Events:  toEventDTOs(result.Events),
	})
}

// Export writes the principal's events as an iCalendar document.
func (h *EventHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	window, err := parseWindow(r.URL.Query())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	events, err := h.service.ExportEvents(r.Context(), principal, window)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	w.Header().Set("Content-Type", ics.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	if err := ics.Write(w, events, h.now()); err != nil {
		h.log(r.Context(), "Export", "principal_id", principal.UserID).ErrorContext(r.Context(), "failed to write calendar", "error", err)
	}
}

func (h *EventHandler) Agenda(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	var date calendar.Date
	if value := strings.TrimSpace(query.Get("date")); value != "" {
		parsed, err := calendar.ParseDate(value)
		if err != nil {
			h.responder.handleServiceError(r.Context(), w, application.NewValidationError("date", "date must be YYYY-MM-DD"))
			return
		}
		date = parsed
	}

	principal, _ := PrincipalFromContext(r.Context())
	agenda, err := h.service.Agenda(r.Context(), principal, date, application.AgendaView(strings.TrimSpace(query.Get("view"))))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAgendaDTO(agenda))
}

func (h *EventHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	notifications, err := h.service.Notifications(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]notificationDTO, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, notificationDTO{
			ID:       n.ID,
			Kind:     n.Kind,
			Priority: n.Priority,
			DaysAway: n.DaysAway,
			Event:    toEventDTO(n.Event),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, notificationsResponse{Notifications: out, Count: len(out)})
}

func (h *EventHandler) Search(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	window, err := parseWindow(query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	events, err := h.service.SearchEvents(r.Context(), application.SearchEventsParams{
		Principal: principal,
		Query:     query.Get("query"),
		Window:    window,
		Group:     query.Get("group"),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, searchResponse{Events: toEventDTOs(events), Count: len(events)})
}

// parseWindow reads startDate and endDate. Both absent yields a nil window; a
// lone bound or a malformed date is a validation error.
func parseWindow(values url.Values) (*calendar.Range, error) {
	startValue := strings.TrimSpace(values.Get("startDate"))
	endValue := strings.TrimSpace(values.Get("endDate"))
	if startValue == "" && endValue == "" {
		return nil, nil
	}

	verr := &application.ValidationError{FieldErrors: map[string]string{}}
	start, err := calendar.ParseDate(startValue)
	if err != nil {
		verr.FieldErrors["startDate"] = "startDate must be YYYY-MM-DD"
	}
	end, err := calendar.ParseDate(endValue)
	if err != nil {
		verr.FieldErrors["endDate"] = "endDate must be YYYY-MM-DD"
	}
	if verr.HasErrors() {
		return nil, verr
	}

	window, err := calendar.NewRange(start, end)
	if err != nil {
		return nil, application.NewValidationError("endDate", "endDate must not be before startDate")
	}
	return &window, nil
}

func parseBool(value string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && b
}

type uploadRequest struct {
	Events json.RawMessage `json:"events"`
}

type uploadResponse struct {
	Message string     `json:"message"`
	Count   int        `json:"count"`
	Events  []eventDTO `json:"events"`
}

type eventResponse struct {
	Event eventDTO `json:"event"`
}

type listEventsResponse struct {
	Events []eventDTO `json:"events"`
}

type searchResponse struct {
	Events []eventDTO `json:"events"`
	Count  int        `json:"count"`
}

type notificationsResponse struct {
	Notifications []notificationDTO `json:"notifications"`
	Count         int               `json:"count"`
}

type notificationDTO struct {
	ID       string   `json:"id"`
	Kind     string   `json:"type"`
	Priority string   `json:"priority"`
	DaysAway int      `json:"daysAway"`
	Event    eventDTO `json:"event"`
}

type agendaSlotDTO struct {
	Class string   `json:"class"`
	Event eventDTO `json:"event"`
}

type agendaDTO struct {
	Date           string          `json:"date"`
	View           string          `json:"view"`
	Banners        []agendaSlotDTO `json:"banners"`
	BannerOverflow int             `json:"bannerOverflow"`
	Items          []agendaSlotDTO `json:"items"`
	Overflow       int             `json:"overflow"`
}

func toAgendaDTO(agenda application.Agenda) agendaDTO {
	return agendaDTO{
		Date:           agenda.Date.String(),
		View:           string(agenda.View),
		Banners:        toAgendaSlotDTOs(agenda.Banners),
		BannerOverflow: agenda.BannerOverflow,
		Items:          toAgendaSlotDTOs(agenda.Items),
		Overflow:       agenda.Overflow,
	}
}

func toAgendaSlotDTOs(slots []application.AgendaSlot) []agendaSlotDTO {
	out := make([]agendaSlotDTO, 0, len(slots))
	for _, slot := range slots {
		out = append(out, agendaSlotDTO{Class: string(slot.Class), Event: toEventDTO(slot.Event)})
	}
	return out
}

type repeatDTO struct {
	Type     string `json:"type"`
	Weekdays []int  `json:"weekdays,omitempty"`
}

type eventDTO struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        string    `json:"date"`
	StartDate   string    `json:"startDate"`
	EndDate     string    `json:"endDate"`
	StartTime   string    `json:"startTime"`
	EndTime     string    `json:"endTime"`
	Duration    int       `json:"duration"`
	Group       string    `json:"group"`
	Repeat      repeatDTO `json:"repeat"`
	CreatedAt   string    `json:"createdAt,omitempty"`
	UpdatedAt   string    `json:"updatedAt,omitempty"`
	SeriesID    string    `json:"seriesId,omitempty"`
}

func toEventDTO(event application.Event) eventDTO {
	repeatType := string(event.Repeat.Type)
	if repeatType == "" {
		repeatType = string(application.RepeatNone)
	}
	return eventDTO{
		ID:          event.ID,
		Title:       event.Title,
		Description: event.Description,
		Date:        event.StartDate.String(),
		StartDate:   event.StartDate.String(),
		EndDate:     event.EndDate.String(),
		StartTime:   event.StartTime,
		EndTime:     event.EndTime,
		Duration:    event.Duration,
		Group:       event.Group,
		Repeat:      repeatDTO{Type: repeatType, Weekdays: event.Repeat.Weekdays},
		CreatedAt:   formatTimestamp(event.CreatedAt),
		UpdatedAt:   formatTimestamp(event.UpdatedAt),
		SeriesID:    event.SeriesID,
	}
}

func toEventDTOs(events []application.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, event := range events {
		out = append(out, toEventDTO(event))
	}
	return out
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
