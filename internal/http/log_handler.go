package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/calendar-service/internal/application"
)

type logService interface {
	QueryLogs(ctx context.Context, params application.LogQueryParams) ([]application.LogEntry, error)
}

// LogHandler serves the admin audit log.
type LogHandler struct {
	service   logService
	responder responder
	logger    *slog.Logger
}

func NewLogHandler(service logService, logger *slog.Logger) *LogHandler {
	base := defaultLogger(logger)
	return &LogHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
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

	limit := 0
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err = strconv.Atoi(value)
		if err != nil || limit < 0 {
			h.responder.handleServiceError(r.Context(), w, application.NewValidationError("limit", "limit must be a positive integer"))
			return
		}
	}

	principal, _ := PrincipalFromContext(r.Context())
	entries, err := h.service.QueryLogs(r.Context(), application.LogQueryParams{
		Principal: principal,
		Action:    application.LogAction(strings.TrimSpace(query.Get("action"))),
		UserID:    strings.TrimSpace(query.Get("userId")),
		Window:    window,
		Limit:     limit,
	})
	if err != nil {
		handlerLogger(r.Context(), h.logger, "LogHandler", "List", "principal_id", principal.UserID).
			WarnContext(r.Context(), "log query rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]logEntryDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, logEntryDTO{
			ID:          entry.ID,
			UserID:      entry.UserID,
			UserName:    entry.UserName,
			UserEmail:   entry.UserEmail,
			Action:      string(entry.Action),
			Description: entry.Description,
			Metadata:    entry.Metadata,
			Timestamp:   entry.Timestamp.UTC().Format(time.RFC3339),
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listLogsResponse{Logs: out, Count: len(out)})
}

type listLogsResponse struct {
	Logs  []logEntryDTO `json:"logs"`
	Count int           `json:"count"`
}

type logEntryDTO struct {
	ID          string         `json:"id"`
	UserID      string         `json:"userId"`
	UserName    string         `json:"userName"`
	UserEmail   string         `json:"userEmail"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Timestamp   string         `json:"timestamp"`
}
