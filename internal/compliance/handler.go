package compliance

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mundos-engagement/internal/apperr"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// Handler exposes the audit trail to admins.
type Handler struct {
	service *AuditService
	logger  *logging.Logger
}

func NewHandler(service *AuditService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the audit endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audit-events", h.ListEvents)
}

// ListEvents handles GET /admin/audit-events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := AuditFilter{
		EntityID:  q.Get("entity_id"),
		EventType: AuditEventType(q.Get("event_type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			apperr.WriteHTTP(w, apperr.InvalidArgument("limit must be a positive integer"))
			return
		}
		filter.Limit = n
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			apperr.WriteHTTP(w, apperr.InvalidArgument("since must be an RFC 3339 timestamp"))
			return
		}
		filter.StartTime = ts
	}

	events, err := h.service.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "error", err)
		apperr.WriteHTTP(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"events": events})
}
