package campaigns

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/mundos-engagement/internal/patients"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	r := chi.NewRouter()
	NewHandler(f.svc, nil).RegisterRoutes(r)
	return r, f
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestCreateRecoveryCampaignHandler(t *testing.T) {
	h, f := newTestRouter(t)

	w := doJSON(t, h, http.MethodPost, "/campaigns/recovery",
		`{"patient_name":"Jane Doe","patient_email":"jane@x.com","initial_inquiry":"Cleaning?","estimated_value":250}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["message"] != "Recovery campaign created successfully." {
		t.Errorf("unexpected message %q", resp["message"])
	}
	c, err := f.svc.Get(context.Background(), resp["campaign_id"])
	if err != nil {
		t.Fatalf("campaign not stored: %v", err)
	}
	if c.Status != StatusAttemptingRecovery {
		t.Errorf("expected attempting_recovery, got %s", c.Status)
	}
}

func TestCreateRecoveryCampaignHandler_InvalidBody(t *testing.T) {
	h, _ := newTestRouter(t)

	w := doJSON(t, h, http.MethodPost, "/campaigns/recovery", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/campaigns/recovery", `{"patient_name":"Jane","patient_email":"nope"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestCreateRecallCampaignHandler(t *testing.T) {
	h, f := newTestRouter(t)
	patient, err := f.directory.Create(context.Background(), patients.Patient{Name: "Jane Doe", Email: "jane@x.com"})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodPost, "/campaigns/recall",
		`{"patient_id":"`+patient.ID+`","engagement_summary":"Six-month cleaning due"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	c, err := f.svc.Get(context.Background(), resp["campaign_id"])
	if err != nil {
		t.Fatalf("campaign not stored: %v", err)
	}
	if c.CampaignType != TypeRecall || c.PatientID != patient.ID {
		t.Errorf("unexpected campaign %+v", c)
	}

	tests := []struct {
		body string
		want int
	}{
		{`{not json`, http.StatusBadRequest},
		{`{"patient_id":"abc"}`, http.StatusBadRequest},
		{`{"patient_id":"00000000-0000-4000-8000-000000000000"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		if w := doJSON(t, h, http.MethodPost, "/campaigns/recall", tt.body); w.Code != tt.want {
			t.Errorf("%s: expected status %d, got %d", tt.body, tt.want, w.Code)
		}
	}
}

func TestRespondHandler(t *testing.T) {
	h, f := newTestRouter(t)
	c, err := f.svc.CreateRecovery(context.Background(), RecoveryRequest{PatientName: "Jane Doe", PatientEmail: "jane@x.com"})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodPost, "/campaigns/"+c.ID+"/respond", `{"message":"Hello again","new_status":"re_engaged"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Response sent successfully.") {
		t.Errorf("unexpected body %s", w.Body.String())
	}

	w = doJSON(t, h, http.MethodPost, "/campaigns/"+c.ID+"/respond", `{"message":"Done","new_status":"recovered"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for disallowed transition, got %d", http.StatusBadRequest, w.Code)
	}

	w = doJSON(t, h, http.MethodPost, "/campaigns/not-an-id/respond", `{"message":"Hi","new_status":"re_engaged"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for malformed id, got %d", http.StatusBadRequest, w.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(w.Body).Decode(&body)
	if body["detail"] != "Invalid campaign_id" {
		t.Errorf("unexpected detail %q", body["detail"])
	}
}

func TestGetCampaignHandler(t *testing.T) {
	h, f := newTestRouter(t)
	c, err := f.svc.CreateRecovery(context.Background(), RecoveryRequest{PatientName: "Jane Doe", PatientEmail: "jane@x.com", InitialInquiry: "Implants"})
	if err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodGet, "/campaigns/"+c.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp struct {
		Details struct {
			CampaignID        string `json:"campaign_id"`
			PatientName       string `json:"patient_name"`
			Status            string `json:"status"`
			EngagementSummary string `json:"engagement_summary"`
		} `json:"campaign_details"`
		History []map[string]any `json:"conversation_history"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Details.CampaignID != c.ID || resp.Details.PatientName != "Jane Doe" || resp.Details.EngagementSummary != "Implants" {
		t.Errorf("unexpected details %+v", resp.Details)
	}
	if resp.History == nil || len(resp.History) != 0 {
		t.Errorf("expected empty history array, got %v", resp.History)
	}

	w = doJSON(t, h, http.MethodGet, "/campaigns/00000000-0000-4000-8000-000000000000", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

func TestListCampaignsHandler(t *testing.T) {
	h, f := newTestRouter(t)
	for i := 0; i < 3; i++ {
		if _, err := f.svc.CreateRecovery(context.Background(), RecoveryRequest{PatientName: "Jane Doe", PatientEmail: "jane@x.com"}); err != nil {
			t.Fatal(err)
		}
	}

	w := doJSON(t, h, http.MethodGet, "/campaigns?page=2&limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp ListResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Campaigns) != 1 {
		t.Errorf("expected 1 campaign on page 2, got %d", len(resp.Campaigns))
	}
	if resp.Pagination != (Pagination{TotalItems: 3, TotalPages: 2, CurrentPage: 2}) {
		t.Errorf("unexpected pagination %+v", resp.Pagination)
	}

	for _, q := range []string{"page=0", "limit=abc", "limit=500", "status=unknown"} {
		w := doJSON(t, h, http.MethodGet, "/campaigns?"+q, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", q, http.StatusBadRequest, w.Code)
		}
	}
}
