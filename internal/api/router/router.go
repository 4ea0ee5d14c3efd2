package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/mundos-engagement/internal/appointments"
	"github.com/wolfman30/mundos-engagement/internal/campaigns"
	"github.com/wolfman30/mundos-engagement/internal/compliance"
	httpmiddleware "github.com/wolfman30/mundos-engagement/internal/http/middleware"
	"github.com/wolfman30/mundos-engagement/internal/observability/metrics"
	"github.com/wolfman30/mundos-engagement/internal/reporting"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Metrics            *metrics.WorkflowMetrics
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	AdminAuthSecret    string

	Campaigns    *campaigns.Handler
	Appointments *appointments.AdminHandler
	Public       *appointments.PublicHandler
	Reporting    *reporting.Handler
	Audit        *compliance.Handler // optional

	// BookingLimiter throttles public bookings per client IP (optional).
	BookingLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger, cfg.Metrics))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Public != nil {
			public.Get("/availability", cfg.Public.GetAvailability)
			book := public.With()
			if cfg.BookingLimiter != nil {
				book = public.With(cfg.BookingLimiter.Middleware)
			}
			book.Post("/appointments/book", cfg.Public.BookAppointment)
		}
	})

	// Admin routes (HS256 bearer JWT)
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
		if cfg.Reporting != nil {
			cfg.Reporting.RegisterRoutes(admin)
		}
		if cfg.Campaigns != nil {
			cfg.Campaigns.RegisterRoutes(admin)
		}
		if cfg.Appointments != nil {
			cfg.Appointments.RegisterRoutes(admin)
		}
		if cfg.Audit != nil {
			cfg.Audit.RegisterRoutes(admin)
		}
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
