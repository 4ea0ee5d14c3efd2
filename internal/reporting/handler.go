package reporting

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mundos-engagement/internal/apperr"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// Handler serves the dashboard endpoint.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts GET /dashboard-stats.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/dashboard-stats", h.GetDashboardStats)
}

// GetDashboardStats handles GET /admin/dashboard-stats.
func (h *Handler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute dashboard stats", "error", err)
		apperr.WriteHTTP(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
