package appointments

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mundos-engagement/internal/apperr"
	"github.com/wolfman30/mundos-engagement/internal/archive"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// AdminHandler serves the staff appointment endpoints.
type AdminHandler struct {
	service *Service
	logger  *logging.Logger
}

// NewAdminHandler creates the admin appointments handler.
func NewAdminHandler(service *Service, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{service: service, logger: logger}
}

// RegisterRoutes mounts the admin endpoints under /appointments.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/appointments", func(r chi.Router) {
		r.Get("/", h.ListAppointments)
		r.Post("/", h.CreateAppointment)
		r.Get("/export", h.ExportAppointments)
		r.Post("/{appointmentID}/complete", h.CompleteAppointment)
		r.Delete("/{appointmentID}", h.DeleteAppointment)
	})
}

// ListAppointments handles GET /admin/appointments.
func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context(), listRequest(r))
	if err != nil {
		fail(w, h.logger, "failed to list appointments", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// CreateAppointment handles POST /admin/appointments.
func (h *AdminHandler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req AdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.InvalidArgument("Invalid request body"))
		return
	}
	appt, err := h.service.CreateAdmin(r.Context(), req)
	if err != nil {
		fail(w, h.logger, "failed to create appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// ExportAppointments handles GET /admin/appointments/export.
func (h *AdminHandler) ExportAppointments(w http.ResponseWriter, r *http.Request) {
	file, err := h.service.Export(r.Context(), listRequest(r))
	if err != nil {
		fail(w, h.logger, "failed to export appointments", err)
		return
	}
	w.Header().Set("Content-Type", archive.XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	if file.ArchiveKey != "" {
		w.Header().Set("X-Archive-Key", file.ArchiveKey)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

// CompleteAppointment handles POST /admin/appointments/{appointmentID}/complete.
func (h *AdminHandler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		apperr.WriteHTTP(w, apperr.InvalidArgument("Invalid request body"))
		return
	}
	if err := h.service.Complete(r.Context(), chi.URLParam(r, "appointmentID"), req); err != nil {
		fail(w, h.logger, "failed to complete appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Appointment completed."})
}

// DeleteAppointment handles DELETE /admin/appointments/{appointmentID}.
func (h *AdminHandler) DeleteAppointment(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "appointmentID")); err != nil {
		fail(w, h.logger, "failed to delete appointment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Appointment deleted."})
}

// PublicHandler serves the patient-facing booking endpoints.
type PublicHandler struct {
	service *Service
	logger  *logging.Logger
}

// NewPublicHandler creates the public booking handler.
func NewPublicHandler(service *Service, logger *logging.Logger) *PublicHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &PublicHandler{service: service, logger: logger}
}

// GetAvailability handles GET /availability.
func (h *PublicHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil {
		apperr.WriteHTTP(w, apperr.InvalidArgument("month is required and must be an integer"))
		return
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		apperr.WriteHTTP(w, apperr.InvalidArgument("year is required and must be an integer"))
		return
	}
	days, err := h.service.Availability(r.Context(), month, year, q.Get("service_id"))
	if err != nil {
		fail(w, h.logger, "failed to compute availability", err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// BookAppointment handles POST /appointments/book.
func (h *PublicHandler) BookAppointment(w http.ResponseWriter, r *http.Request) {
	var req BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteHTTP(w, apperr.InvalidArgument("Invalid request body"))
		return
	}
	appt, err := h.service.Book(r.Context(), req)
	if err != nil {
		fail(w, h.logger, "failed to book appointment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"message":        "Appointment booked successfully.",
		"appointment_id": appt.ID,
	})
}

func listRequest(r *http.Request) ListRequest {
	q := r.URL.Query()
	return ListRequest{StartDate: q.Get("start_date"), EndDate: q.Get("end_date")}
}

func fail(w http.ResponseWriter, logger *logging.Logger, msg string, err error) {
	if apperr.KindOf(err) == apperr.KindInternal {
		logger.Error(msg, "error", err)
	}
	apperr.WriteHTTP(w, err)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
