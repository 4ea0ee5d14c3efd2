package main

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
)

func request(method, path, body string) events.APIGatewayV2HTTPRequest {
	return events.APIGatewayV2HTTPRequest{
		RawPath: path,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			HTTP: events.APIGatewayV2HTTPRequestContextHTTPDescription{
				Method:   method,
				Path:     path,
				SourceIP: "198.51.100.4",
			},
		},
	}
}

func TestHandleRejectsUnlistedPaths(t *testing.T) {
	cfg := config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}
	client := &http.Client{Timeout: time.Second}

	for _, path := range []string{"/admin/campaigns", "/metrics", "/health", "/appointments"} {
		resp, err := handle(context.Background(), cfg, client, request(http.MethodGet, path, ""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}
}

func TestHandleRejectsWrongMethod(t *testing.T) {
	cfg := config{upstreamBaseURL: "http://example.com", upstreamTimeout: time.Second}
	client := &http.Client{Timeout: time.Second}

	resp, err := handle(context.Background(), cfg, client, request(http.MethodGet, "/appointments/book", ""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.StatusCode)
	}
	if resp.Headers["allow"] != http.MethodPost {
		t.Fatalf("expected allow header, got %q", resp.Headers["allow"])
	}
}

func TestHandleProxiesBooking(t *testing.T) {
	var gotBody, gotIP, gotPath string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotIP = r.Header.Get("X-Real-Ip")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"message":"Appointment booked successfully.","appointment_id":"a1"}`))
	}))
	defer upstream.Close()

	cfg := config{upstreamBaseURL: upstream.URL, upstreamTimeout: time.Second}
	payload := `{"email":"jane@x.com","appointment_date":"2025-03-03T10:00:00Z","service_name":"Botox"}`
	evt := request(http.MethodPost, "/appointments/book", base64.StdEncoding.EncodeToString([]byte(payload)))
	evt.IsBase64Encoded = true

	resp, err := handle(context.Background(), cfg, upstream.Client(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if gotBody != payload {
		t.Fatalf("expected decoded body forwarded, got %q", gotBody)
	}
	if gotIP != "198.51.100.4" || gotPath != "/appointments/book" {
		t.Fatalf("unexpected forward ip=%q path=%q", gotIP, gotPath)
	}
	if resp.Headers["content-type"] != "application/json" {
		t.Fatalf("expected content type passthrough, got %q", resp.Headers["content-type"])
	}
}

func TestHandleForwardsAvailabilityQuery(t *testing.T) {
	var gotQuery string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	cfg := config{upstreamBaseURL: upstream.URL, upstreamTimeout: time.Second}
	evt := request(http.MethodGet, "/availability", "")
	evt.RawQueryString = "month=3&year=2025"

	resp, err := handle(context.Background(), cfg, upstream.Client(), evt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusOK || gotQuery != "month=3&year=2025" {
		t.Fatalf("unexpected status %d query %q", resp.StatusCode, gotQuery)
	}
}

func TestHandleUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	upstream.Close()

	cfg := config{upstreamBaseURL: upstream.URL, upstreamTimeout: time.Second}
	resp, err := handle(context.Background(), cfg, &http.Client{Timeout: time.Second}, request(http.MethodPost, "/appointments/book", "{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestLoadConfigRequiresUpstream(t *testing.T) {
	t.Setenv("API_UPSTREAM_URL", "")
	if _, err := loadConfig(); err == nil {
		t.Fatal("expected error without API_UPSTREAM_URL")
	}

	t.Setenv("API_UPSTREAM_URL", "https://api.example.com/")
	t.Setenv("UPSTREAM_TIMEOUT", "2s")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.upstreamBaseURL != "https://api.example.com" || cfg.upstreamTimeout != 2*time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
