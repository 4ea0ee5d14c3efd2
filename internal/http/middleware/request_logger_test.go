package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mundos-engagement/internal/observability/metrics"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

func bufferLogger(buf *bytes.Buffer) *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewJSONHandler(buf, nil))}
}

func TestRequestLoggerRecordsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(RequestLogger(bufferLogger(&buf), metrics.NewWorkflowMetrics(reg)))
	r.Get("/campaigns/{campaignID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/campaigns/abc", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "/campaigns/{campaignID}", line["route"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
	assert.NotEmpty(t, line["request_id"])

	families, err := reg.Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() == "engagement_http_request_seconds" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRequestLoggerErrorLevelForServerErrors(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(bufferLogger(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "ERROR", line["level"])
	assert.Equal(t, "/boom", line["route"])
}

func TestRequestLoggerDefaultsStatusOK(t *testing.T) {
	var buf bytes.Buffer
	h := RequestLogger(bufferLogger(&buf), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, float64(http.StatusOK), line["status"])
}
