package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/example/calendar-service/internal/calendar"
	"github.com/example/calendar-service/internal/persistence"
	"github.com/example/calendar-service/internal/placement"
	"github.com/example/calendar-service/internal/recurrence"
)

// SearchLimit caps the number of events a search returns.
const SearchLimit = 100

// OccurrenceSeparator joins a stored event id and an occurrence date.
const OccurrenceSeparator = "@"

// EventRepository captures the persistence interactions needed by the event service.
// Every read is scoped to OwnerID and excludes inactive events.
type EventRepository interface {
	CreateEvent(ctx context.Context, event Event) (Event, error)
	GetEvent(ctx context.Context, ownerID, id string) (Event, error)
	UpdateEvent(ctx context.Context, event Event) (Event, error)
	DeactivateEvent(ctx context.Context, ownerID, id string, at time.Time) error
	DeactivateOwnerEvents(ctx context.Context, ownerID string, at time.Time) (int, error)
	ListEvents(ctx context.Context, filter EventFilter) ([]Event, error)
}

// EventFilter narrows queries issued to the event repository.
type EventFilter struct {
	OwnerID string
	// Window matches events whose date interval overlaps it. Nil matches all dates.
	Window *calendar.Range
	// IncludeRecurring also matches repeating events that start on or before
	// Window.End, even when their own dates fall outside the window.
	IncludeRecurring bool
	// Query is a case-insensitive literal substring of title or description.
	Query string
	// Group is a case-insensitive literal substring of the group label.
	Group string
	Limit int
}

// RecurrenceExpander turns a repeat rule into occurrence dates.
type RecurrenceExpander interface {
	Expand(rule recurrence.Rule, anchor calendar.Date, window calendar.Range) ([]calendar.Date, error)
}

// AgendaView selects the placement budget used by Agenda.
type AgendaView string

const (
	AgendaGrid AgendaView = "grid"
	AgendaList AgendaView = "list"
)

// AgendaSlot is an event placed on a day together with its priority class.
type AgendaSlot struct {
	Event Event
	Class placement.Class
}

// Agenda is the placement of one day's events.
type Agenda struct {
	Date           calendar.Date
	View           AgendaView
	Banners        []AgendaSlot
	BannerOverflow int
	Items          []AgendaSlot
	Overflow       int
}

// Notification is a reminder about an upcoming or repeating event.
type Notification struct {
	ID       string
	Kind     string
	Priority string
	Event    Event
	DaysAway int
}

// EventService orchestrates validation, ownership and persistence for events.
type EventService struct {
	events      EventRepository
	activity    ActivityRecorder
	expander    RecurrenceExpander
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewEventService wires dependencies for event operations.
func NewEventService(events EventRepository, activity ActivityRecorder, expander RecurrenceExpander, idGenerator func() string, now func() time.Time) *EventService {
	return NewEventServiceWithLogger(events, activity, expander, idGenerator, now, nil)
}

// NewEventServiceWithLogger wires dependencies for event operations with a logger.
func NewEventServiceWithLogger(events EventRepository, activity ActivityRecorder, expander RecurrenceExpander, idGenerator func() string, now func() time.Time, logger *slog.Logger) *EventService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if expander == nil {
		expander = recurrence.NewEngine(0, 0)
	}
	return &EventService{
		events:      events,
		activity:    activity,
		expander:    expander,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *EventService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "EventService", operation, attrs...)
}

func (s *EventService) record(ctx context.Context, userID string, action LogAction, description string, metadata map[string]any) {
	if s.activity == nil {
		return
	}
	s.activity.Record(ctx, userID, action, description, metadata)
}

// CreateEvent validates the submission and stores a new event owned by the principal.
func (s *EventService) CreateEvent(ctx context.Context, params CreateEventParams) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateEvent", "principal_id", params.Principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event creation failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event created", "event_id", event.ID)
	}()

	if params.Principal.UserID == "" {
		err = ErrAuthentication
		return
	}

	var fields EventFields
	fields, err = ValidateEventInput(params.Input)
	if err != nil {
		return
	}

	event, err = s.create(ctx, params.Principal.UserID, fields)
	if err != nil {
		return
	}

	s.record(ctx, params.Principal.UserID, LogEventCreated, fmt.Sprintf("Created event: %s", event.Title), map[string]any{
		"eventId": event.ID,
		"title":   event.Title,
	})
	return event, nil
}

func (s *EventService) create(ctx context.Context, ownerID string, fields EventFields) (Event, error) {
	createdAt := s.now()
	event := applyFields(Event{
		ID:        s.idGenerator(),
		OwnerID:   ownerID,
		Active:    true,
		CreatedAt: createdAt,
	}, fields)
	event.UpdatedAt = createdAt

	if s.events == nil {
		return event, nil
	}

	persisted, err := s.events.CreateEvent(ctx, event)
	if err != nil {
		return Event{}, mapEventRepoError("create event", err)
	}
	return persisted, nil
}

// UpdateEvent replaces the fields of an event owned by the principal. Events
// owned by someone else are reported as not found.
func (s *EventService) UpdateEvent(ctx context.Context, params UpdateEventParams) (event Event, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}
	if s.events == nil {
		err = fmt.Errorf("event repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "UpdateEvent",
		"principal_id", params.Principal.UserID,
		"event_id", params.EventID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event update failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event updated")
	}()

	if params.Principal.UserID == "" {
		err = ErrAuthentication
		return
	}

	eventID := seriesID(params.EventID)
	var existing Event
	existing, err = s.events.GetEvent(ctx, params.Principal.UserID, eventID)
	if err != nil {
		err = mapEventRepoError("get event", err)
		return
	}
	if existing.OwnerID != params.Principal.UserID || !existing.Active {
		err = ErrNotFound
		return
	}

	var fields EventFields
	fields, err = ValidateEventInput(params.Input)
	if err != nil {
		return
	}

	updated := applyFields(existing, fields)
	updated.UpdatedAt = s.now()

	event, err = s.events.UpdateEvent(ctx, updated)
	if err != nil {
		err = mapEventRepoError("update event", err)
		return
	}

	s.record(ctx, params.Principal.UserID, LogEventUpdated, fmt.Sprintf("Updated event: %s", event.Title), map[string]any{
		"eventId": event.ID,
		"title":   event.Title,
	})
	return event, nil
}

// DeleteEvent soft-deletes an event owned by the principal.
func (s *EventService) DeleteEvent(ctx context.Context, principal Principal, eventID string) (err error) {
	if s == nil {
		return fmt.Errorf("EventService is nil")
	}
	if s.events == nil {
		return fmt.Errorf("event repository not configured")
	}

	logger := s.loggerWith(ctx, "DeleteEvent",
		"principal_id", principal.UserID,
		"event_id", eventID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event deletion failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "event deleted")
	}()

	if principal.UserID == "" {
		return ErrAuthentication
	}

	id := seriesID(eventID)
	existing, err := s.events.GetEvent(ctx, principal.UserID, id)
	if err != nil {
		return mapEventRepoError("get event", err)
	}
	if existing.OwnerID != principal.UserID || !existing.Active {
		return ErrNotFound
	}

	if err = s.events.DeactivateEvent(ctx, principal.UserID, id, s.now()); err != nil {
		return mapEventRepoError("delete event", err)
	}

	s.record(ctx, principal.UserID, LogEventDeleted, fmt.Sprintf("Deleted event: %s", existing.Title), map[string]any{
		"eventId": existing.ID,
		"title":   existing.Title,
	})
	return nil
}

// ListEvents returns the principal's active events overlapping the window.
// With Expand set, repeating single-day events are replaced by their
// occurrences inside the window.
func (s *EventService) ListEvents(ctx context.Context, params ListEventsParams) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if params.Principal.UserID == "" {
		return nil, ErrAuthentication
	}
	if s.events == nil {
		return nil, nil
	}

	expand := params.Expand && params.Window != nil
	events, err := s.events.ListEvents(ctx, EventFilter{
		OwnerID:          params.Principal.UserID,
		Window:           params.Window,
		IncludeRecurring: expand,
	})
	if err != nil {
		return nil, mapEventRepoError("list events", err)
	}

	events = activeOwned(events, params.Principal.UserID)
	if expand {
		events, err = s.expand(events, *params.Window)
		if err != nil {
			return nil, err
		}
	}

	sortEvents(events)
	return events, nil
}

func (s *EventService) expand(events []Event, window calendar.Range) ([]Event, error) {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if !e.Repeat.IsRecurring() || e.IsMultiDay() {
			if window.Overlaps(e.StartDate, e.EndDate) {
				out = append(out, e)
			}
			continue
		}

		dates, err := s.expander.Expand(e.Repeat.Rule(), e.StartDate, window)
		if err != nil {
			return nil, fmt.Errorf("expand event %s: %w", e.ID, err)
		}
		for _, d := range dates {
			occurrence := e
			occurrence.ID = e.ID + OccurrenceSeparator + d.String()
			occurrence.SeriesID = e.ID
			occurrence.StartDate = d
			occurrence.EndDate = d
			if w := e.Repeat.Weekdays; w != nil {
				occurrence.Repeat.Weekdays = append([]int(nil), w...)
			}
			out = append(out, occurrence)
		}
	}
	return out, nil
}

// UploadEvents creates every well-formed entry of a batch. Entries lacking a
// title or either time, and entries that fail validation, are skipped.
func (s *EventService) UploadEvents(ctx context.Context, params UploadEventsParams) (result UploadResult, err error) {
	if s == nil {
		err = fmt.Errorf("EventService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UploadEvents",
		"principal_id", params.Principal.UserID,
		"entries", len(params.Entries),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "event upload failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "events uploaded", "count", result.Count, "skipped", result.Skipped)
	}()

	if params.Principal.UserID == "" {
		err = ErrAuthentication
		return
	}

	today := s.now()
	result.Events = make([]Event, 0, len(params.Entries))
	for _, entry := range params.Entries {
		if strings.TrimSpace(entry.Title) == "" || strings.TrimSpace(entry.StartTime) == "" || strings.TrimSpace(entry.EndTime) == "" {
			result.Skipped++
			continue
		}

		fields, vErr := ValidateEventInput(uploadDefaults(entry, today))
		if vErr != nil {
			var invalid *ValidationError
			if !errors.As(vErr, &invalid) {
				err = vErr
				return
			}
			result.Skipped++
			continue
		}

		var event Event
		event, err = s.create(ctx, params.Principal.UserID, fields)
		if err != nil {
			// Events created so far stay; the audit entry reports them.
			result.Count = len(result.Events)
			if result.Count > 0 {
				s.record(ctx, params.Principal.UserID, LogJSONUpload, fmt.Sprintf("Uploaded %d events before a storage failure", result.Count), map[string]any{
					"eventCount": result.Count,
					"failed":     true,
				})
			}
			return
		}
		result.Events = append(result.Events, event)
	}
	result.Count = len(result.Events)

	s.record(ctx, params.Principal.UserID, LogJSONUpload, fmt.Sprintf("Uploaded %d events", result.Count), map[string]any{
		"eventCount": result.Count,
	})
	return result, nil
}

// SearchEvents matches the principal's events by text, date window and group.
func (s *EventService) SearchEvents(ctx context.Context, params SearchEventsParams) ([]Event, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}
	if params.Principal.UserID == "" {
		return nil, ErrAuthentication
	}
	if s.events == nil {
		return nil, nil
	}

	events, err := s.events.ListEvents(ctx, EventFilter{
		OwnerID: params.Principal.UserID,
		Window:  params.Window,
		Query:   strings.TrimSpace(params.Query),
		Group:   strings.TrimSpace(params.Group),
		Limit:   SearchLimit,
	})
	if err != nil {
		return nil, mapEventRepoError("search events", err)
	}

	events = activeOwned(events, params.Principal.UserID)
	sortEvents(events)
	if len(events) > SearchLimit {
		events = events[:SearchLimit]
	}
	return events, nil
}

// ExportEvents returns the stored events of the principal overlapping the
// window without expanding repeats.
func (s *EventService) ExportEvents(ctx context.Context, principal Principal, window *calendar.Range) ([]Event, error) {
	return s.ListEvents(ctx, ListEventsParams{Principal: principal, Window: window})
}

// Agenda places the principal's events for date using the service clock.
func (s *EventService) Agenda(ctx context.Context, principal Principal, date calendar.Date, view AgendaView) (Agenda, error) {
	if s == nil {
		return Agenda{}, fmt.Errorf("EventService is nil")
	}
	if date.IsZero() {
		date = calendar.DateOf(s.now())
	}
	if view == "" {
		view = AgendaList
	}

	opts := placement.ListOptions
	switch view {
	case AgendaGrid:
		opts = placement.GridOptions
	case AgendaList:
	default:
		return Agenda{}, NewValidationError("view", "view must be one of: grid, list")
	}

	window := calendar.Range{Start: date, End: date}
	events, err := s.ListEvents(ctx, ListEventsParams{Principal: principal, Window: &window, Expand: true})
	if err != nil {
		return Agenda{}, err
	}

	byID := make(map[string]Event, len(events))
	candidates := make([]placement.Event, 0, len(events))
	for _, e := range events {
		byID[e.ID] = e
		candidates = append(candidates, e.PlacementEvent())
	}

	placed := placement.Place(date, candidates, s.now(), opts)
	return Agenda{
		Date:           date,
		View:           view,
		Banners:        agendaSlots(placed.Banners, byID),
		BannerOverflow: placed.BannerOverflow,
		Items:          agendaSlots(placed.Items, byID),
		Overflow:       placed.Overflow,
	}, nil
}

func agendaSlots(slots []placement.Slot, byID map[string]Event) []AgendaSlot {
	out := make([]AgendaSlot, 0, len(slots))
	for _, slot := range slots {
		out = append(out, AgendaSlot{Event: byID[slot.Event.ID], Class: slot.Class})
	}
	return out
}

// Notifications lists reminders for events starting within the next week and
// for every repeating event of the principal.
func (s *EventService) Notifications(ctx context.Context, principal Principal) ([]Notification, error) {
	if s == nil {
		return nil, fmt.Errorf("EventService is nil")
	}

	events, err := s.ListEvents(ctx, ListEventsParams{Principal: principal})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Event, len(events))
	candidates := make([]placement.Event, 0, len(events))
	for _, e := range events {
		byID[e.ID] = e
		candidates = append(candidates, e.PlacementEvent())
	}

	notices := placement.Notices(candidates, s.now(), placement.UpcomingWindowDays)
	out := make([]Notification, 0, len(notices))
	for _, n := range notices {
		id := n.Event.ID
		if n.Kind == placement.NoticeRepeat {
			id = "repeat-" + id
		}
		out = append(out, Notification{
			ID:       id,
			Kind:     n.Kind,
			Priority: n.Priority,
			Event:    byID[n.Event.ID],
			DaysAway: n.DaysAway,
		})
	}
	return out, nil
}

// PlacementEvent converts the event into the shape used by the placement engine.
func (e Event) PlacementEvent() placement.Event {
	return placement.Event{
		ID:        e.ID,
		Title:     e.Title,
		StartDate: e.StartDate,
		EndDate:   e.EndDate,
		StartTime: e.StartTime,
		EndTime:   e.EndTime,
		Group:     e.Group,
		Recurring: e.Repeat.IsRecurring(),
	}
}

func applyFields(event Event, fields EventFields) Event {
	event.Title = fields.Title
	event.Description = fields.Description
	event.StartDate = fields.StartDate
	event.EndDate = fields.EndDate
	event.StartTime = fields.StartTime
	event.EndTime = fields.EndTime
	event.Duration = fields.Duration
	event.Group = fields.Group
	event.Repeat = fields.Repeat
	return event
}

// Rule converts the stored tag into a recurrence rule.
func (r Repeat) Rule() recurrence.Rule {
	rule := recurrence.Rule{Frequency: recurrence.Frequency(r.Type)}
	for _, day := range r.Weekdays {
		rule.Weekdays = append(rule.Weekdays, time.Weekday(day))
	}
	return rule
}

// seriesID strips an occurrence suffix so occurrences address their stored event.
func seriesID(id string) string {
	base, _, _ := strings.Cut(strings.TrimSpace(id), OccurrenceSeparator)
	return base
}

func activeOwned(events []Event, ownerID string) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if e.Active && e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out
}

func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if c := a.StartDate.Compare(b.StartDate); c != 0 {
			return c < 0
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		return a.ID < b.ID
	})
}

func mapEventRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFoundError(err) {
		return ErrNotFound
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return err
	}
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return NewValidationError("endDate", "endDate must not be before startDate")
	}
	return upstream(op, err)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}
