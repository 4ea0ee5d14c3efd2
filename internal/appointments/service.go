package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/mundos-engagement/internal/apperr"
	"github.com/wolfman30/mundos-engagement/internal/campaigns"
	"github.com/wolfman30/mundos-engagement/internal/compliance"
	"github.com/wolfman30/mundos-engagement/internal/docstore"
	"github.com/wolfman30/mundos-engagement/internal/events"
	"github.com/wolfman30/mundos-engagement/internal/locks"
	"github.com/wolfman30/mundos-engagement/internal/observability/metrics"
	"github.com/wolfman30/mundos-engagement/internal/patients"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

var appointmentsTracer = otel.Tracer("engagement.internal.appointments")

const msgNotFound = "Appointment not found"

// Service runs the appointment workflow.
type Service struct {
	store     docstore.Store
	patients  *patients.Directory
	campaigns *campaigns.Service
	locker    locks.Locker
	emitter   *events.Emitter
	audit     compliance.Recorder
	metrics   *metrics.WorkflowMetrics
	archive   Archiver
	logger    *logging.Logger
	now       func() time.Time
	loc       *time.Location
}

// Deps carries the optional collaborators of a Service.
type Deps struct {
	Locker  locks.Locker
	Emitter *events.Emitter
	Audit   compliance.Recorder
	Metrics *metrics.WorkflowMetrics
	// Archive receives a copy of every export when set.
	Archive Archiver
	Logger  *logging.Logger
	Now     func() time.Time

	// Location is the practice timezone. Zone-less times are read in it.
	Location *time.Location
}

// NewService constructs the appointment workflow.
func NewService(store docstore.Store, directory *patients.Directory, campaignSvc *campaigns.Service, deps Deps) *Service {
	if store == nil {
		panic("appointments: document store required")
	}
	if directory == nil {
		panic("appointments: patient directory required")
	}
	if campaignSvc == nil {
		panic("appointments: campaign service required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &Service{
		store:     store,
		patients:  directory,
		campaigns: campaignSvc,
		locker:    deps.Locker,
		emitter:   deps.Emitter,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		archive:   deps.Archive,
		logger:    deps.Logger,
		now:       deps.Now,
		loc:       deps.Location,
	}
}

// Book creates an appointment for a patient whose campaign is re_engaged and
// moves that campaign to booking_initiated.
func (s *Service) Book(ctx context.Context, req BookRequest) (appt Appointment, err error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.book")
	defer span.End()
	defer s.observe("appointments.book", time.Now(), &err)

	date, err := s.requireTime("appointment_date", req.AppointmentDate)
	if err != nil {
		return Appointment{}, err
	}
	duration := DefaultDurationMinutes
	if req.DurationMinutes != nil {
		duration = *req.DurationMinutes
	}
	if duration < 1 {
		return Appointment{}, apperr.InvalidArgument("duration_minutes must be positive")
	}
	service := strings.TrimSpace(req.ServiceName)
	if service == "" {
		return Appointment{}, apperr.InvalidArgument("service_name is required")
	}

	patient, err := s.patients.FindByEmailOrPhone(ctx, req.Email, req.Phone)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.metrics.ObserveBookingRejected("patient_not_found")
		}
		return Appointment{}, err
	}
	span.SetAttributes(attribute.String("engagement.patient_id", patient.ID))

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "booking:"+patient.ID)
		if errors.Is(err, locks.ErrNotAcquired) {
			s.metrics.ObserveBookingRejected("locked")
			return Appointment{}, apperr.Conflict("Another booking for this patient is in progress; retry shortly.")
		}
		if err != nil {
			return Appointment{}, fmt.Errorf("appointments: lock: %w", err)
		}
		defer release()
	}

	campaign, err := s.campaigns.FindActiveReEngaged(ctx, patient.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.metrics.ObserveBookingRejected("no_active_campaign")
		}
		return Appointment{}, err
	}
	span.SetAttributes(attribute.String("engagement.campaign_id", campaign.ID))

	campaignID := campaign.ID
	appt, err = s.insert(ctx, Appointment{
		PatientID:       patient.ID,
		CampaignID:      &campaignID,
		AppointmentDate: date,
		DurationMinutes: duration,
		ServiceName:     service,
		CreatedFrom:     SourceAIAgentForm,
	})
	if err != nil {
		span.RecordError(err)
		return Appointment{}, err
	}

	if err := s.campaigns.MarkBookingInitiated(ctx, campaign.ID); err != nil {
		// the campaign moved on since it was read; drop the booking
		if _, delErr := s.store.Delete(ctx, Collection, appt.ID); delErr != nil {
			s.logger.Error("failed to roll back booking", "appointment_id", appt.ID, "error", delErr)
		}
		span.RecordError(err)
		return Appointment{}, err
	}

	s.booked(ctx, appt)
	return appt, nil
}

// CreateAdmin records an appointment entered by staff, registering the
// patient by email when unknown. It is not linked to any campaign.
func (s *Service) CreateAdmin(ctx context.Context, req AdminRequest) (appt Appointment, err error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.create_admin")
	defer span.End()
	defer s.observe("appointments.create_admin", time.Now(), &err)

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Appointment{}, apperr.InvalidArgument("name is required")
	}
	date, err := s.requireTime("appointment_date", req.AppointmentDate)
	if err != nil {
		return Appointment{}, err
	}
	duration := req.DurationMinutes
	if duration == 0 {
		duration = DefaultDurationMinutes
	}
	if duration < 1 {
		return Appointment{}, apperr.InvalidArgument("duration_minutes must be positive")
	}
	service := strings.TrimSpace(req.ServiceName)
	if service == "" {
		return Appointment{}, apperr.InvalidArgument("service_name is required")
	}
	channel, ok := patients.ParseChannel(req.PreferredChannel)
	if !ok {
		return Appointment{}, apperr.InvalidArgument(fmt.Sprintf("unknown preferred_channel %q", req.PreferredChannel))
	}

	patient, _, err := s.patients.FindOrCreateByEmail(ctx, req.Email, patients.Patient{
		Name:             name,
		PatientType:      patients.TypeExisting,
		PreferredChannel: []patients.Channel{channel},
	})
	if err != nil {
		span.RecordError(err)
		return Appointment{}, err
	}
	span.SetAttributes(attribute.String("engagement.patient_id", patient.ID))

	appt, err = s.insert(ctx, Appointment{
		PatientID:       patient.ID,
		AppointmentDate: date,
		DurationMinutes: duration,
		ServiceName:     service,
		Notes:           req.Notes,
		CreatedFrom:     SourceManualAdmin,
	})
	if err != nil {
		span.RecordError(err)
		return Appointment{}, err
	}
	s.booked(ctx, appt)
	return appt, nil
}

// Complete marks the appointment completed, recovers its campaign and stores
// the patient's next follow-up date when one is given. Every referenced
// record is loaded before anything is written.
func (s *Service) Complete(ctx context.Context, id string, req CompleteRequest) (err error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.complete")
	defer span.End()
	span.SetAttributes(attribute.String("engagement.appointment_id", id))
	defer s.observe("appointments.complete", time.Now(), &err)

	var followUp *time.Time
	if req.NextFollowUpDate != nil && strings.TrimSpace(*req.NextFollowUpDate) != "" {
		t, _, err := parseTime(*req.NextFollowUpDate, s.loc)
		if err != nil {
			return apperr.InvalidArgument("next_follow_up_date must be an ISO 8601 date or timestamp")
		}
		followUp = &t
	}

	appt, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if appt.CampaignID != nil {
		if _, err := s.campaigns.Get(ctx, *appt.CampaignID); err != nil {
			return err
		}
	}
	if followUp != nil {
		if _, err := s.patients.Get(ctx, appt.PatientID); err != nil {
			return err
		}
	}

	now := s.now().UTC()
	if appt.CampaignID == nil {
		err = s.markCompleted(ctx, id, now)
	} else {
		// the appointment is written under the campaign lock so both move together
		written := false
		err = s.campaigns.RecoverWith(ctx, *appt.CampaignID, func(ctx context.Context, at time.Time) error {
			now = at
			if err := s.markCompleted(ctx, id, at); err != nil {
				return err
			}
			written = true
			return nil
		})
		if err != nil && written {
			s.revertStatus(ctx, id, appt.Status)
		}
	}
	if err != nil {
		span.RecordError(err)
		return err
	}
	if followUp != nil {
		if err := s.patients.SetNextFollowUp(ctx, appt.PatientID, *followUp); err != nil {
			span.RecordError(err)
			return err
		}
	}

	s.metrics.ObserveAppointment("completed", string(appt.CreatedFrom))
	s.logger.Info("appointment completed", "appointment_id", id, "patient_id", appt.PatientID)
	s.emitter.Emit(ctx, id, events.AppointmentCompletedV1{
		AppointmentID:    id,
		PatientID:        appt.PatientID,
		CampaignID:       deref(appt.CampaignID),
		NextFollowUpDate: followUp,
		CompletedAt:      now,
	})
	s.recordAudit(ctx, compliance.AuditEvent{
		EventType:  compliance.EventAppointmentCompleted,
		EntityType: "appointment",
		EntityID:   id,
		Details: mustJSON(map[string]any{
			"campaign_id":         appt.CampaignID,
			"next_follow_up_date": followUp,
		}),
	})
	return nil
}

func (s *Service) markCompleted(ctx context.Context, id string, now time.Time) error {
	err := s.store.Update(ctx, Collection, id, docstore.Document{
		"status":     string(StatusCompleted),
		"updated_at": now,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return fmt.Errorf("appointments: complete: %w", err)
	}
	return nil
}

func (s *Service) revertStatus(ctx context.Context, id string, status Status) {
	err := s.store.Update(ctx, Collection, id, docstore.Document{
		"status":     string(status),
		"updated_at": s.now().UTC(),
	})
	if err != nil {
		s.logger.Error("failed to roll back appointment status", "appointment_id", id, "error", err)
	}
}

// Delete removes the appointment. Deleting an unknown id succeeds. When the
// appointment existed a snapshot of it is kept in the audit trail.
func (s *Service) Delete(ctx context.Context, id string) (err error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.delete")
	defer span.End()
	span.SetAttributes(attribute.String("engagement.appointment_id", id))
	defer s.observe("appointments.delete", time.Now(), &err)

	if !docstore.ValidID(id) {
		return nil
	}
	snapshot, err := s.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("appointments: load for delete: %w", err)
	}
	existed, err := s.store.Delete(ctx, Collection, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("appointments: delete: %w", err)
	}
	if !existed {
		return nil
	}

	source, _ := snapshot["created_from"].(string)
	s.metrics.ObserveAppointment("deleted", source)
	s.logger.Info("appointment deleted", "appointment_id", id)
	s.emitter.Emit(ctx, id, events.AppointmentDeletedV1{AppointmentID: id, DeletedAt: s.now().UTC()})
	s.recordAudit(ctx, compliance.AuditEvent{
		EventType:  compliance.EventAppointmentDeleted,
		EntityType: "appointment",
		EntityID:   id,
		Details:    mustJSON(snapshot),
	})
	return nil
}

// Get returns the appointment with id. Malformed ids are reported as not
// found.
func (s *Service) Get(ctx context.Context, id string) (Appointment, error) {
	if !docstore.ValidID(id) {
		return Appointment{}, apperr.NotFound(msgNotFound)
	}
	doc, err := s.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Appointment{}, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("appointments: get: %w", err)
	}
	var rec stored
	if err := docstore.Decode(doc, &rec); err != nil {
		return Appointment{}, err
	}
	appt := rec.Appointment
	appt.AppointmentDate, _, _ = parseTime(rec.AppointmentDate, s.loc)
	return appt, nil
}

// List returns appointments whose date falls in the inclusive range, in date
// order. A bare end date covers that whole day. Appointments whose stored
// date cannot be read never match a range.
func (s *Service) List(ctx context.Context, req ListRequest) ([]ListItem, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.list")
	defer span.End()

	start, end, err := s.parseRange(req)
	if err != nil {
		return nil, err
	}

	docs, err := s.store.Find(ctx, Collection, docstore.Query{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list: %w", err)
	}

	type row struct {
		rec stored
		at  time.Time
		ok  bool
	}
	rows := make([]row, 0, len(docs))
	for _, doc := range docs {
		var rec stored
		if err := docstore.Decode(doc, &rec); err != nil {
			s.logger.Warn("skipping unreadable appointment", "appointment_id", doc.ID(), "error", err)
			continue
		}
		at, _, perr := parseTime(rec.AppointmentDate, s.loc)
		ok := perr == nil
		if start != nil && (!ok || at.Before(*start)) {
			continue
		}
		if end != nil && (!ok || at.After(*end)) {
			continue
		}
		rows = append(rows, row{rec: rec, at: at, ok: ok})
	}
	slices.SortFunc(rows, func(a, b row) int {
		switch {
		case a.ok && !b.ok:
			return -1
		case !a.ok && b.ok:
			return 1
		}
		if c := a.at.Compare(b.at); c != 0 {
			return c
		}
		return strings.Compare(a.rec.ID, b.rec.ID)
	})

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.rec.PatientID)
	}
	names, err := s.patients.DisplayNames(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]ListItem, 0, len(rows))
	for _, r := range rows {
		date := r.rec.AppointmentDate
		if r.ok {
			date = r.at.UTC().Format(time.RFC3339)
		}
		items = append(items, ListItem{
			AppointmentID:   r.rec.ID,
			PatientID:       r.rec.PatientID,
			PatientName:     names[r.rec.PatientID],
			CampaignID:      r.rec.CampaignID,
			AppointmentDate: date,
			DurationMinutes: r.rec.DurationMinutes,
			ServiceName:     r.rec.ServiceName,
			Status:          r.rec.Status,
			CreatedFrom:     r.rec.CreatedFrom,
		})
	}
	return items, nil
}

func (s *Service) parseRange(req ListRequest) (start, end *time.Time, err error) {
	if v := strings.TrimSpace(req.StartDate); v != "" {
		t, _, err := parseTime(v, s.loc)
		if err != nil {
			return nil, nil, apperr.InvalidArgument("start_date must be an ISO 8601 date or timestamp")
		}
		start = &t
	}
	if v := strings.TrimSpace(req.EndDate); v != "" {
		t, bare, err := parseTime(v, s.loc)
		if err != nil {
			return nil, nil, apperr.InvalidArgument("end_date must be an ISO 8601 date or timestamp")
		}
		if bare {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		end = &t
	}
	return start, end, nil
}

func (s *Service) requireTime(field, value string) (time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return time.Time{}, apperr.InvalidArgument(field + " is required")
	}
	t, _, err := parseTime(value, s.loc)
	if err != nil {
		return time.Time{}, apperr.InvalidArgument(field + " must be an ISO 8601 timestamp")
	}
	return t.UTC(), nil
}

func (s *Service) insert(ctx context.Context, appt Appointment) (Appointment, error) {
	now := s.now().UTC()
	appt.Status = StatusBooked
	appt.CreatedAt = now
	appt.UpdatedAt = now
	doc, err := docstore.Encode(appt)
	if err != nil {
		return Appointment{}, err
	}
	appt.ID, err = s.store.Insert(ctx, Collection, doc)
	if err != nil {
		return Appointment{}, fmt.Errorf("appointments: create: %w", err)
	}
	return appt, nil
}

func (s *Service) booked(ctx context.Context, appt Appointment) {
	s.metrics.ObserveAppointment("booked", string(appt.CreatedFrom))
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"patient_id", appt.PatientID,
		"created_from", appt.CreatedFrom,
	)
	s.emitter.Emit(ctx, appt.ID, events.AppointmentBookedV1{
		AppointmentID:   appt.ID,
		PatientID:       appt.PatientID,
		CampaignID:      deref(appt.CampaignID),
		ServiceName:     appt.ServiceName,
		AppointmentDate: appt.AppointmentDate,
		DurationMinutes: appt.DurationMinutes,
		CreatedFrom:     string(appt.CreatedFrom),
	})
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	s.metrics.ObserveOperation(operation, start, *err)
}

func (s *Service) recordAudit(ctx context.Context, event compliance.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record audit event", "event_type", event.EventType, "entity_id", event.EntityID, "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
