package appointments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mundos-engagement/internal/archive"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	public := NewPublicHandler(f.svc, nil)
	r.Get("/availability", public.GetAvailability)
	r.Post("/appointments/book", public.BookAppointment)
	r.Route("/admin", func(r chi.Router) {
		NewAdminHandler(f.svc, nil).RegisterRoutes(r)
	})
	return r, f
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestBookAppointmentHandler(t *testing.T) {
	h, f := newTestRouter(t)
	f.reEngaged(t)

	w := do(h, http.MethodPost, "/appointments/book", `{"email":"jane@x.com","appointment_date":"2025-03-10T10:00","service_name":"Cleaning"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["message"] != "Appointment booked successfully." || resp["appointment_id"] == "" {
		t.Errorf("unexpected response %v", resp)
	}

	w = do(h, http.MethodPost, "/appointments/book", `{"email":"jane@x.com","appointment_date":"2025-03-11T10:00","service_name":"Cleaning"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d once the campaign is claimed, got %d", http.StatusNotFound, w.Code)
	}
	if !strings.Contains(w.Body.String(), "Active re-engaged campaign not found") {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	w = do(h, http.MethodPost, "/appointments/book", `{"service_name":"Cleaning","appointment_date":"2025-03-11T10:00"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d without contact details, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestAvailabilityHandler(t *testing.T) {
	h, _ := newTestRouter(t)

	w := do(h, http.MethodGet, "/availability?month=3&year=2025&service_id=x", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var days map[string][]string
	if err := json.NewDecoder(w.Body).Decode(&days); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(days["2025-03-03"]) != 16 {
		t.Errorf("expected 16 slots on a free weekday, got %d", len(days["2025-03-03"]))
	}

	for _, q := range []string{"", "month=3", "month=x&year=2025", "month=13&year=2025", "month=1&year=1999"} {
		w := do(h, http.MethodGet, "/availability?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%q: expected status %d, got %d", q, http.StatusBadRequest, w.Code)
		}
	}
}

func TestAdminAppointmentLifecycle(t *testing.T) {
	h, f := newTestRouter(t)

	w := do(h, http.MethodPost, "/admin/appointments", `{"name":"John Roe","email":"john@x.com","appointment_date":"2025-03-12T09:00:00","duration_minutes":30,"service_name":"Exam","notes":"first visit"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var appt Appointment
	if err := json.NewDecoder(w.Body).Decode(&appt); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if appt.CreatedFrom != SourceManualAdmin || appt.CampaignID != nil {
		t.Errorf("unexpected appointment %+v", appt)
	}

	w = do(h, http.MethodGet, "/admin/appointments?start_date=2025-03-01&end_date=2025-03-31", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var list struct {
		Appointments []ListItem `json:"appointments"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Appointments) != 1 || list.Appointments[0].PatientName != "John Roe" {
		t.Errorf("unexpected list %+v", list.Appointments)
	}

	w = do(h, http.MethodGet, "/admin/appointments?start_date=garbage", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	w = do(h, http.MethodPost, "/admin/appointments/"+appt.ID+"/complete", `{"next_follow_up_date":"2025-09-10"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	patient, err := f.directory.Get(context.Background(), appt.PatientID)
	if err != nil {
		t.Fatal(err)
	}
	if patient.NextFollowUpDate == nil {
		t.Error("expected follow-up date to be stored")
	}

	w = do(h, http.MethodPost, "/admin/appointments/"+appt.ID+"/complete", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected empty body to be accepted, got %d", w.Code)
	}

	w = do(h, http.MethodPost, "/admin/appointments/unknown/complete", `{}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}

	for i := 0; i < 2; i++ {
		w = do(h, http.MethodDelete, "/admin/appointments/"+appt.ID, "")
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Appointment deleted.") {
			t.Errorf("delete #%d: got %d %s", i+1, w.Code, w.Body.String())
		}
	}
}

func TestExportHandler(t *testing.T) {
	h, f := newTestRouter(t)
	if _, err := f.svc.CreateAdmin(context.Background(), AdminRequest{Name: "John Roe", Email: "john@x.com", AppointmentDate: "2025-03-12T09:00:00Z", ServiceName: "Exam"}); err != nil {
		t.Fatal(err)
	}

	w := do(h, http.MethodGet, "/admin/appointments/export", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != archive.XLSXContentType {
		t.Errorf("unexpected content type %q", ct)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Disposition"), `attachment; filename="appointments-`) {
		t.Errorf("unexpected disposition %q", w.Header().Get("Content-Disposition"))
	}
	if rows := readRows(t, w.Body.Bytes()); len(rows) != 2 {
		t.Errorf("expected header and one row, got %d rows", len(rows))
	}
}
