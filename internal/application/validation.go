package application

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/example/calendar-service/internal/calendar"
)

var eventValidator = newEventValidator()

func newEventValidator() *validator.Validate {
	v := validator.New()

	// Report fields by their JSON names so errors line up with request bodies.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("isodate", validateISODate)
	_ = v.RegisterValidation("clock", validateClock)

	return v
}

func validateISODate(fl validator.FieldLevel) bool {
	_, err := calendar.ParseDate(fl.Field().String())
	return err == nil
}

func validateClock(fl validator.FieldLevel) bool {
	_, err := calendar.ParseClock(fl.Field().String())
	return err == nil
}

// NormalizeEventInput trims text fields, fills StartDate and EndDate from the
// Date shorthand, and drops weekday selections for non-weekly repeats.
func NormalizeEventInput(input EventInput) EventInput {
	out := input
	out.Title = strings.TrimSpace(input.Title)
	out.Description = strings.TrimSpace(input.Description)
	out.Date = strings.TrimSpace(input.Date)
	out.StartDate = strings.TrimSpace(input.StartDate)
	out.EndDate = strings.TrimSpace(input.EndDate)
	out.StartTime = strings.TrimSpace(input.StartTime)
	out.EndTime = strings.TrimSpace(input.EndTime)
	out.Group = strings.TrimSpace(input.Group)

	if out.Date != "" {
		if out.StartDate == "" {
			out.StartDate = out.Date
		}
		if out.EndDate == "" {
			out.EndDate = out.StartDate
		}
	}

	out.Repeat.Type = RepeatType(strings.ToLower(strings.TrimSpace(string(input.Repeat.Type))))
	if out.Repeat.Type == "" {
		out.Repeat.Type = RepeatNone
	}
	if out.Repeat.Type != RepeatWeekly || len(input.Repeat.Weekdays) == 0 {
		out.Repeat.Weekdays = nil
	} else {
		out.Repeat.Weekdays = append([]int(nil), input.Repeat.Weekdays...)
	}
	return out
}

// ValidateEventInput checks an event submission against the schema and the
// date/time ordering rules. On success it returns the parsed fields with the
// duration derived from the time span.
func ValidateEventInput(input EventInput) (EventFields, error) {
	normalized := NormalizeEventInput(input)
	vErr := &ValidationError{}

	if err := eventValidator.Struct(normalized); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return EventFields{}, fmt.Errorf("validate event: %w", err)
		}
		vErr.merge(translateFieldErrors(fieldErrs))
	}

	startDate, startErr := calendar.ParseDate(normalized.StartDate)
	endDate, endErr := calendar.ParseDate(normalized.EndDate)
	datesValid := startErr == nil && endErr == nil
	if datesValid && endDate.Before(startDate) {
		vErr.add("endDate", "endDate must not be before startDate")
	}

	hasStart := normalized.StartTime != ""
	hasEnd := normalized.EndTime != ""
	switch {
	case hasStart && !hasEnd:
		vErr.add("endTime", "endTime is required when startTime is set")
	case hasEnd && !hasStart:
		vErr.add("startTime", "startTime is required when endTime is set")
	}

	duration := 0
	if hasStart && hasEnd && datesValid && !vErr.HasErrors() {
		span, err := spanMinutes(startDate, normalized.StartTime, endDate, normalized.EndTime)
		if err != nil {
			vErr.add("startTime", "startTime and endTime must be in HH:mm format")
		} else if span <= 0 {
			vErr.add("endTime", "endTime must be after startTime")
		} else {
			duration = span
		}
	}

	if vErr.HasErrors() {
		return EventFields{}, vErr
	}

	return EventFields{
		Title:       normalized.Title,
		Description: normalized.Description,
		StartDate:   startDate,
		EndDate:     endDate,
		StartTime:   normalized.StartTime,
		EndTime:     normalized.EndTime,
		Duration:    duration,
		Group:       normalized.Group,
		Repeat:      normalized.Repeat,
	}, nil
}

func translateFieldErrors(errs validator.ValidationErrors) *ValidationError {
	vErr := &ValidationError{}
	for _, fe := range errs {
		field := fieldPath(fe)
		vErr.add(field, fieldMessage(field, fe))
	}
	return vErr
}

// fieldPath strips the root struct name and slice indexes, e.g.
// "EventInput.repeat.weekdays[2]" becomes "repeat.weekdays".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		ns = rest
	}
	if idx := strings.IndexByte(ns, '['); idx >= 0 {
		ns = ns[:idx]
	}
	return ns
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "isodate":
		return field + " must be a date in YYYY-MM-DD format"
	case "clock":
		return field + " must be a time in HH:mm format"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be between 0 and 6", field)
	case "min":
		return fmt.Sprintf("%s must be between 0 and 6", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "unique":
		return field + " must not contain duplicates"
	default:
		return field + " is invalid"
	}
}

func spanMinutes(startDate calendar.Date, startTime string, endDate calendar.Date, endTime string) (int, error) {
	start, err := calendar.ParseClock(startTime)
	if err != nil {
		return 0, err
	}
	end, err := calendar.ParseClock(endTime)
	if err != nil {
		return 0, err
	}
	return calendar.SpanMinutes(startDate, start, endDate, end), nil
}

// uploadDefaults fills missing dates of a bulk entry with the given day.
func uploadDefaults(input EventInput, today time.Time) EventInput {
	out := input
	day := calendar.DateOf(today).String()
	if strings.TrimSpace(out.Date) == "" && strings.TrimSpace(out.StartDate) == "" {
		out.StartDate = day
	}
	if strings.TrimSpace(out.Date) == "" && strings.TrimSpace(out.EndDate) == "" {
		out.EndDate = strings.TrimSpace(out.StartDate)
	}
	return out
}
