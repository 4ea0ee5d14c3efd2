package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/mundos-engagement/internal/config"
	"github.com/wolfman30/mundos-engagement/internal/events"
	"github.com/wolfman30/mundos-engagement/internal/locks"
	"github.com/wolfman30/mundos-engagement/internal/notify"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

func memoryConfig() *appconfig.Config {
	return &appconfig.Config{
		StoreBackend:         appconfig.StoreMemory,
		EventsBackend:        appconfig.EventsLog,
		EmailProvider:        "stub",
		PracticeTimezone:     "America/New_York",
		AdminJWTSecret:       "secret",
		PublicRateLimitRPS:   5,
		PublicRateLimitBurst: 5,
	}
}

func TestBuildServesHealthAndMetrics(t *testing.T) {
	app, err := Build(context.Background(), memoryConfig(), aws.Config{}, logging.New("error"))
	require.NoError(t, err)
	defer app.Close()

	rr := httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "engagement_http_request_seconds"), "http histogram should be exported")

	rr = httptest.NewRecorder()
	app.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/audit-events", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBuildRejectsBadTimezone(t *testing.T) {
	cfg := memoryConfig()
	cfg.PracticeTimezone = "Mars/Olympus"

	_, err := Build(context.Background(), cfg, aws.Config{}, nil)
	assert.Error(t, err)
}

func TestBuildStoreUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreBackend = "cassandra"

	_, _, err := BuildStore(context.Background(), cfg, aws.Config{}, logging.New("error"))
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestBuildPublisherDefaultsToLog(t *testing.T) {
	cfg := memoryConfig()
	cfg.EventsBackend = ""

	pub, closeFn, err := BuildPublisher(cfg, aws.Config{}, logging.New("error"))
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &events.LogPublisher{}, pub)
}

func TestBuildPublisherUnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.EventsBackend = "kafka"

	_, _, err := BuildPublisher(cfg, aws.Config{}, logging.New("error"))
	assert.Error(t, err)
}

func TestBuildEmailSenderSendGridWithoutKeyFallsBack(t *testing.T) {
	cfg := memoryConfig()
	cfg.EmailProvider = "sendgrid"

	sender := BuildEmailSender(cfg, aws.Config{}, logging.New("error"))
	assert.IsType(t, &notify.StubEmailSender{}, sender)
}

func TestBuildArchiveDisabledWithoutBucket(t *testing.T) {
	assert.Nil(t, BuildArchive(memoryConfig(), aws.Config{}, logging.New("error")))
}

func TestBuildAuditDisabledWithoutDSN(t *testing.T) {
	audit, closeFn, err := BuildAudit(memoryConfig(), logging.New("error"))
	require.NoError(t, err)
	defer closeFn()
	assert.False(t, audit.Enabled())
}

func TestBuildLockerPrefersRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := memoryConfig()
	cfg.RedisAddr = mr.Addr()

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	require.NotNil(t, client)
	defer client.Close()

	assert.IsType(t, &locks.RedisLocker{}, BuildLocker(client, cfg, nil))
	assert.IsType(t, &locks.LocalLocker{}, BuildLocker(nil, cfg, nil))
}

func TestBuildRedisClientDisabled(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), memoryConfig(), nil, true))
}
