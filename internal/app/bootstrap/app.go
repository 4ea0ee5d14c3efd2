package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/mundos-engagement/internal/api/router"
	"github.com/wolfman30/mundos-engagement/internal/appointments"
	"github.com/wolfman30/mundos-engagement/internal/campaigns"
	"github.com/wolfman30/mundos-engagement/internal/compliance"
	appconfig "github.com/wolfman30/mundos-engagement/internal/config"
	"github.com/wolfman30/mundos-engagement/internal/events"
	httpmiddleware "github.com/wolfman30/mundos-engagement/internal/http/middleware"
	"github.com/wolfman30/mundos-engagement/internal/notify"
	"github.com/wolfman30/mundos-engagement/internal/observability/metrics"
	"github.com/wolfman30/mundos-engagement/internal/patients"
	"github.com/wolfman30/mundos-engagement/internal/reporting"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// App is the assembled API: its HTTP handler plus everything that must be
// released on shutdown.
type App struct {
	Handler  http.Handler
	Registry *prometheus.Registry

	closers []func()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Build wires every backend selected by cfg into the HTTP API.
func Build(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (_ *App, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	loc, err := time.LoadLocation(cfg.PracticeTimezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: practice timezone: %w", err)
	}

	app := &App{Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	workflowMetrics := metrics.NewWorkflowMetrics(app.Registry)

	store, closeStore, err := BuildStore(ctx, cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeStore)

	redisClient := BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		app.closers = append(app.closers, func() { _ = redisClient.Close() })
	}
	locker := BuildLocker(redisClient, cfg, logger)

	publisher, closePublisher, err := BuildPublisher(cfg, awsCfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closePublisher)
	emitter := events.NewEmitter(publisher, logger, workflowMetrics)

	audit, closeAudit, err := BuildAudit(cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, closeAudit)

	messenger := notify.NewPatientMessenger(BuildEmailSender(cfg, awsCfg, logger), cfg.PracticeName, logger, workflowMetrics)

	directory := patients.NewDirectory(store, locker, logger)
	campaignSvc := campaigns.NewService(store, directory, campaigns.Deps{
		Locker:    locker,
		Messenger: messenger,
		Emitter:   emitter,
		Audit:     audit,
		Metrics:   workflowMetrics,
		Logger:    logger,
	})
	appointmentSvc := appointments.NewService(store, directory, campaignSvc, appointments.Deps{
		Locker:   locker,
		Emitter:  emitter,
		Audit:    audit,
		Metrics:  workflowMetrics,
		Archive:  BuildArchive(cfg, awsCfg, logger),
		Logger:   logger,
		Location: loc,
	})

	limiter := httpmiddleware.NewRateLimiter(cfg.PublicRateLimitRPS, cfg.PublicRateLimitBurst)
	app.closers = append(app.closers, limiter.Stop)

	routerCfg := &router.Config{
		Logger:             logger,
		Metrics:            workflowMetrics,
		MetricsHandler:     promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		Campaigns:          campaigns.NewHandler(campaignSvc, logger),
		Appointments:       appointments.NewAdminHandler(appointmentSvc, logger),
		Public:             appointments.NewPublicHandler(appointmentSvc, logger),
		Reporting:          reporting.NewHandler(reporting.NewService(store, loc, logger), logger),
		BookingLimiter:     limiter,
	}
	if audit.Enabled() {
		routerCfg.Audit = compliance.NewHandler(audit, logger)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin endpoints will reject every request")
	}
	app.Handler = router.New(routerCfg)
	return app, nil
}
