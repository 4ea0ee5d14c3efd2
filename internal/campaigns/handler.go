package campaigns

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mundos-engagement/internal/apperr"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// Handler serves the admin campaign endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates a campaigns handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes mounts the campaign endpoints under /campaigns.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Get("/", h.ListCampaigns)
		r.Post("/recovery", h.CreateRecoveryCampaign)
		r.Post("/recall", h.CreateRecallCampaign)
		r.Get("/{campaignID}", h.GetCampaign)
		r.Post("/{campaignID}/respond", h.RespondToCampaign)
	})
}

// ListCampaigns handles GET /admin/campaigns.
func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListRequest{Status: q.Get("status"), Page: 1, Limit: DefaultPageSize}
	var err error
	if v := q.Get("page"); v != "" {
		if req.Page, err = strconv.Atoi(v); err != nil || req.Page < 1 {
			apperr.WriteHTTP(w, apperr.InvalidArgument("page must be a positive integer"))
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if req.Limit, err = strconv.Atoi(v); err != nil || req.Limit < 1 {
			apperr.WriteHTTP(w, apperr.InvalidArgument("limit must be a positive integer"))
			return
		}
	}

	result, err := h.service.List(r.Context(), req)
	if err != nil {
		h.fail(w, "failed to list campaigns", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// CreateRecoveryCampaign handles POST /admin/campaigns/recovery.
func (h *Handler) CreateRecoveryCampaign(w http.ResponseWriter, r *http.Request) {
	var req RecoveryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.InvalidArgument("Invalid request body"))
		return
	}
	c, err := h.service.CreateRecovery(r.Context(), req)
	if err != nil {
		h.fail(w, "failed to create recovery campaign", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":     "Recovery campaign created successfully.",
		"campaign_id": c.ID,
	})
}

// CreateRecallCampaign handles POST /admin/campaigns/recall.
func (h *Handler) CreateRecallCampaign(w http.ResponseWriter, r *http.Request) {
	var req RecallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.InvalidArgument("Invalid request body"))
		return
	}
	c, err := h.service.CreateRecall(r.Context(), req.PatientID, req.EngagementSummary)
	if err != nil {
		h.fail(w, "failed to create recall campaign", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":     "Recall campaign created successfully.",
		"campaign_id": c.ID,
	})
}

// GetCampaign handles GET /admin/campaigns/{campaignID}.
func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.Details(r.Context(), chi.URLParam(r, "campaignID"))
	if err != nil {
		h.fail(w, "failed to load campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// RespondToCampaign handles POST /admin/campaigns/{campaignID}/respond.
func (h *Handler) RespondToCampaign(w http.ResponseWriter, r *http.Request) {
	var req RespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.InvalidArgument("Invalid request body"))
		return
	}
	if err := h.service.Respond(r.Context(), chi.URLParam(r, "campaignID"), req); err != nil {
		h.fail(w, "failed to respond to campaign", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Response sent successfully."})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		h.logger.Error(msg, "error", err)
	}
	apperr.WriteHTTP(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
