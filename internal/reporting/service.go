// Package reporting aggregates campaign and appointment documents into the
// admin dashboard figures.
package reporting

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/wolfman30/mundos-engagement/internal/appointments"
	"github.com/wolfman30/mundos-engagement/internal/campaigns"
	"github.com/wolfman30/mundos-engagement/internal/docstore"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

var reportingTracer = otel.Tracer("engagement.internal.reporting")

// KPIs are the headline dashboard counters.
type KPIs struct {
	AppointmentsBookedMonth int `json:"appointments_booked_month"`
	HandoffsRequiringAction int `json:"handoffs_requiring_action"`
	ActiveRecoveryCampaigns int `json:"active_recovery_campaigns"`
}

// ConversionRates are percentages rounded to one decimal place.
type ConversionRates struct {
	RecoveryRatePercent float64 `json:"recovery_rate_percent"`
	RecallRatePercent   float64 `json:"recall_rate_percent"`
}

// DashboardStats is the admin dashboard payload.
type DashboardStats struct {
	KPIs            KPIs            `json:"kpis"`
	ConversionRates ConversionRates `json:"conversion_rates"`
}

// Service computes dashboard figures. It never writes.
type Service struct {
	store  docstore.Store
	logger *logging.Logger
	now    func() time.Time
	loc    *time.Location
}

// NewService constructs a reporting service. loc is used to read stored
// appointment times that carry no zone; nil means UTC.
func NewService(store docstore.Store, loc *time.Location, logger *logging.Logger) *Service {
	if store == nil {
		panic("reporting: document store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, logger: logger, now: time.Now, loc: loc}
}

// DashboardStats aggregates the current figures. Month boundaries are UTC.
func (s *Service) DashboardStats(ctx context.Context) (DashboardStats, error) {
	ctx, span := reportingTracer.Start(ctx, "reporting.dashboard_stats")
	defer span.End()

	var stats DashboardStats
	var err error
	if stats.KPIs.AppointmentsBookedMonth, err = s.bookedThisMonth(ctx); err != nil {
		span.RecordError(err)
		return DashboardStats{}, err
	}
	if stats.KPIs.HandoffsRequiringAction, err = s.count(ctx, campaigns.Collection,
		docstore.Eq("status", string(campaigns.StatusHandoffRequired))); err != nil {
		span.RecordError(err)
		return DashboardStats{}, err
	}
	if stats.KPIs.ActiveRecoveryCampaigns, err = s.count(ctx, campaigns.Collection,
		docstore.Eq("campaign_type", string(campaigns.TypeRecovery)),
		docstore.In("status", string(campaigns.StatusAttemptingRecovery), string(campaigns.StatusReEngaged))); err != nil {
		span.RecordError(err)
		return DashboardStats{}, err
	}
	if stats.ConversionRates.RecoveryRatePercent, err = s.rate(ctx, campaigns.TypeRecovery); err != nil {
		span.RecordError(err)
		return DashboardStats{}, err
	}
	if stats.ConversionRates.RecallRatePercent, err = s.rate(ctx, campaigns.TypeRecall); err != nil {
		span.RecordError(err)
		return DashboardStats{}, err
	}
	return stats, nil
}

func (s *Service) bookedThisMonth(ctx context.Context) (int, error) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	docs, err := s.store.Find(ctx, appointments.Collection,
		docstore.Where(docstore.Eq("status", string(appointments.StatusBooked))))
	if err != nil {
		return 0, fmt.Errorf("reporting: load appointments: %w", err)
	}
	n := 0
	for _, doc := range docs {
		at, ok := appointments.StoredDate(doc, s.loc)
		if ok && !at.Before(start) && at.Before(end) {
			n++
		}
	}
	return n, nil
}

// rate is the share of campaigns of type t that reached recovered.
func (s *Service) rate(ctx context.Context, t campaigns.Type) (float64, error) {
	total, err := s.count(ctx, campaigns.Collection, docstore.Eq("campaign_type", string(t)))
	if err != nil || total == 0 {
		return 0, err
	}
	recovered, err := s.count(ctx, campaigns.Collection,
		docstore.Eq("campaign_type", string(t)),
		docstore.Eq("status", string(campaigns.StatusRecovered)))
	if err != nil {
		return 0, err
	}
	return roundTenth(float64(recovered) / float64(total) * 100), nil
}

func (s *Service) count(ctx context.Context, collection string, filters ...docstore.Filter) (int, error) {
	n, err := s.store.Count(ctx, collection, docstore.Where(filters...))
	if err != nil {
		return 0, fmt.Errorf("reporting: count %s: %w", collection, err)
	}
	return n, nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
