package campaigns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/mundos-engagement/internal/apperr"
	"github.com/wolfman30/mundos-engagement/internal/compliance"
	"github.com/wolfman30/mundos-engagement/internal/docstore"
	"github.com/wolfman30/mundos-engagement/internal/events"
	"github.com/wolfman30/mundos-engagement/internal/locks"
	"github.com/wolfman30/mundos-engagement/internal/notify"
	"github.com/wolfman30/mundos-engagement/internal/observability/metrics"
	"github.com/wolfman30/mundos-engagement/internal/patients"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

var campaignsTracer = otel.Tracer("engagement.internal.campaigns")

const (
	msgInvalidID = "Invalid campaign_id"
	msgNotFound  = "Campaign not found"
	msgNoActive  = "Active re-engaged campaign not found"
)

// Service runs the campaign workflow.
type Service struct {
	store     docstore.Store
	patients  *patients.Directory
	locker    locks.Locker
	messenger *notify.PatientMessenger
	emitter   *events.Emitter
	audit     compliance.Recorder
	metrics   *metrics.WorkflowMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// Deps carries the optional collaborators of a Service. Nil members disable
// the matching side effect.
type Deps struct {
	Locker    locks.Locker
	Messenger *notify.PatientMessenger
	Emitter   *events.Emitter
	Audit     compliance.Recorder
	Metrics   *metrics.WorkflowMetrics
	Logger    *logging.Logger
	Now       func() time.Time
}

// NewService constructs the campaign workflow.
func NewService(store docstore.Store, directory *patients.Directory, deps Deps) *Service {
	if store == nil {
		panic("campaigns: document store required")
	}
	if directory == nil {
		panic("campaigns: patient directory required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		store:     store,
		patients:  directory,
		locker:    deps.Locker,
		messenger: deps.Messenger,
		emitter:   deps.Emitter,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Now,
	}
}

// CreateRecovery registers a new cold-lead patient and opens a recovery
// campaign for them. A new patient record is always inserted.
func (s *Service) CreateRecovery(ctx context.Context, req RecoveryRequest) (c Campaign, err error) {
	ctx, span := campaignsTracer.Start(ctx, "campaigns.create_recovery")
	defer span.End()
	defer s.observe("campaigns.create_recovery", time.Now(), &err)

	name := strings.TrimSpace(req.PatientName)
	if name == "" {
		return Campaign{}, apperr.InvalidArgument("patient_name is required")
	}
	if err := patients.ValidateEmail(req.PatientEmail); err != nil {
		return Campaign{}, err
	}

	patient, err := s.patients.Create(ctx, patients.Patient{
		Name:             name,
		Email:            req.PatientEmail,
		PatientType:      patients.TypeColdLead,
		PreferredChannel: []patients.Channel{patients.ChannelEmail},
	})
	if err != nil {
		span.RecordError(err)
		return Campaign{}, err
	}

	c, err = s.open(ctx, Campaign{
		PatientID:         patient.ID,
		CampaignType:      TypeRecovery,
		EngagementSummary: req.InitialInquiry,
		EstimatedValue:    req.EstimatedValue,
	})
	if err != nil {
		span.RecordError(err)
		if delErr := s.patients.Delete(ctx, patient.ID); delErr != nil {
			s.logger.Error("failed to roll back cold lead", "patient_id", patient.ID, "error", delErr)
		}
		return Campaign{}, err
	}
	span.SetAttributes(
		attribute.String("engagement.campaign_id", c.ID),
		attribute.String("engagement.patient_id", patient.ID),
	)
	return c, nil
}

// CreateRecall opens a recall campaign for an existing patient, typically
// once their follow-up date comes due.
func (s *Service) CreateRecall(ctx context.Context, patientID, summary string) (c Campaign, err error) {
	ctx, span := campaignsTracer.Start(ctx, "campaigns.create_recall")
	defer span.End()
	span.SetAttributes(attribute.String("engagement.patient_id", patientID))
	defer s.observe("campaigns.create_recall", time.Now(), &err)

	if !docstore.ValidID(patientID) {
		return Campaign{}, apperr.InvalidArgument("Invalid patient_id")
	}
	patient, err := s.patients.Get(ctx, patientID)
	if err != nil {
		return Campaign{}, err
	}
	c, err = s.open(ctx, Campaign{
		PatientID:         patient.ID,
		CampaignType:      TypeRecall,
		EngagementSummary: strings.TrimSpace(summary),
	})
	if err != nil {
		span.RecordError(err)
		return Campaign{}, err
	}
	span.SetAttributes(attribute.String("engagement.campaign_id", c.ID))
	return c, nil
}

// open stores c as a new attempting_recovery campaign and announces it.
func (s *Service) open(ctx context.Context, c Campaign) (Campaign, error) {
	now := s.now().UTC()
	c.Status = StatusAttemptingRecovery
	c.CreatedAt = now
	c.UpdatedAt = now
	doc, err := docstore.Encode(c)
	if err != nil {
		return Campaign{}, err
	}
	c.ID, err = s.store.Insert(ctx, Collection, doc)
	if err != nil {
		return Campaign{}, fmt.Errorf("campaigns: create: %w", err)
	}

	s.metrics.ObserveTransition("create", "", string(c.Status))
	s.logger.Info("campaign created", "campaign_id", c.ID, "patient_id", c.PatientID, "campaign_type", c.CampaignType)
	s.emitter.Emit(ctx, c.ID, events.CampaignCreatedV1{
		CampaignID:   c.ID,
		PatientID:    c.PatientID,
		CampaignType: string(c.CampaignType),
		Status:       string(c.Status),
		CreatedAt:    now,
	})
	s.recordAudit(ctx, compliance.AuditEvent{
		EventType:  compliance.EventCampaignCreated,
		EntityType: "campaign",
		EntityID:   c.ID,
		Details:    mustJSON(map[string]any{"patient_id": c.PatientID, "campaign_type": c.CampaignType}),
	})
	return c, nil
}

// Get returns the campaign with id.
func (s *Service) Get(ctx context.Context, id string) (Campaign, error) {
	if !docstore.ValidID(id) {
		return Campaign{}, apperr.InvalidArgument(msgInvalidID)
	}
	doc, err := s.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Campaign{}, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return Campaign{}, fmt.Errorf("campaigns: get: %w", err)
	}
	var c Campaign
	if err := docstore.Decode(doc, &c); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

// Respond records an outgoing admin message and moves the campaign to the
// requested status. The message is emailed to the patient when possible;
// delivery problems do not fail the call.
func (s *Service) Respond(ctx context.Context, id string, req RespondRequest) (err error) {
	ctx, span := campaignsTracer.Start(ctx, "campaigns.respond")
	defer span.End()
	span.SetAttributes(attribute.String("engagement.campaign_id", id))
	defer s.observe("campaigns.respond", time.Now(), &err)

	if !docstore.ValidID(id) {
		return apperr.InvalidArgument(msgInvalidID)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return apperr.InvalidArgument("message is required")
	}
	requested, ok := ParseStatus(req.NewStatus)
	if !ok {
		return apperr.InvalidArgument(fmt.Sprintf("unknown campaign status %q", req.NewStatus))
	}

	var interaction Interaction
	from, to, err := s.transition(ctx, id, ActionRespond, requested, func(ctx context.Context, now time.Time) error {
		interaction = Interaction{
			CampaignID: id,
			Direction:  DirectionOutgoing,
			Content:    message,
			Timestamp:  now,
		}
		doc, err := docstore.Encode(interaction)
		if err != nil {
			return err
		}
		interaction.ID, err = s.store.Insert(ctx, InteractionsCollection, doc)
		if err != nil {
			return fmt.Errorf("campaigns: record interaction: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if interaction.ID != "" {
			if _, delErr := s.store.Delete(ctx, InteractionsCollection, interaction.ID); delErr != nil {
				s.logger.Error("failed to roll back interaction", "interaction_id", interaction.ID, "error", delErr)
			}
		}
		return err
	}

	s.emitter.Emit(ctx, id, events.CampaignRespondedV1{
		CampaignID:     id,
		InteractionID:  interaction.ID,
		PreviousStatus: string(from.Status),
		Status:         string(to),
		RespondedAt:    interaction.Timestamp,
	})
	s.deliver(ctx, from, message)
	return nil
}

// MarkBookingInitiated moves a re-engaged campaign to booking_initiated.
func (s *Service) MarkBookingInitiated(ctx context.Context, id string) error {
	_, _, err := s.transition(ctx, id, ActionBook, "", nil)
	return err
}

// MarkRecovered moves a campaign to recovered regardless of its status.
func (s *Service) MarkRecovered(ctx context.Context, id string) error {
	return s.RecoverWith(ctx, id, nil)
}

// RecoverWith moves a campaign to recovered, running before under the
// campaign lock once the campaign is loaded and before its status is stored.
// An error from before leaves the campaign untouched.
func (s *Service) RecoverWith(ctx context.Context, id string, before func(context.Context, time.Time) error) error {
	_, _, err := s.transition(ctx, id, ActionComplete, "", before)
	return err
}

// FindActiveReEngaged returns the most recently updated re-engaged campaign
// of the patient.
func (s *Service) FindActiveReEngaged(ctx context.Context, patientID string) (Campaign, error) {
	docs, err := s.store.Find(ctx, Collection, docstore.Where(
		docstore.Eq("patient_id", patientID),
		docstore.Eq("status", string(StatusReEngaged)),
	).OrderBy(docstore.Desc("updated_at")).Take(1))
	if err != nil {
		return Campaign{}, fmt.Errorf("campaigns: find re-engaged: %w", err)
	}
	if len(docs) == 0 {
		return Campaign{}, apperr.NotFound(msgNoActive)
	}
	var c Campaign
	if err := docstore.Decode(docs[0], &c); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

// List returns one page of campaigns, most recently updated first.
func (s *Service) List(ctx context.Context, req ListRequest) (ListResult, error) {
	ctx, span := campaignsTracer.Start(ctx, "campaigns.list")
	defer span.End()

	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = DefaultPageSize
	}
	if req.Page < 1 {
		return ListResult{}, apperr.InvalidArgument("page must be at least 1")
	}
	if req.Limit < 1 || req.Limit > MaxPageSize {
		return ListResult{}, apperr.InvalidArgument(fmt.Sprintf("limit must be between 1 and %d", MaxPageSize))
	}

	q := docstore.Query{}
	if req.Status != "" {
		status, ok := ParseStatus(req.Status)
		if !ok {
			return ListResult{}, apperr.InvalidArgument(fmt.Sprintf("unknown campaign status %q", req.Status))
		}
		q = docstore.Where(docstore.Eq("status", string(status)))
	}
	docs, err := s.store.Find(ctx, Collection, q.OrderBy(docstore.Desc("updated_at")))
	if err != nil {
		span.RecordError(err)
		return ListResult{}, fmt.Errorf("campaigns: list: %w", err)
	}

	total := len(docs)
	start := min((req.Page-1)*req.Limit, total)
	end := min(start+req.Limit, total)
	page := make([]Campaign, 0, end-start)
	patientIDs := make([]string, 0, end-start)
	for _, doc := range docs[start:end] {
		var c Campaign
		if err := docstore.Decode(doc, &c); err != nil {
			return ListResult{}, err
		}
		page = append(page, c)
		patientIDs = append(patientIDs, c.PatientID)
	}
	names, err := s.patients.DisplayNames(ctx, patientIDs)
	if err != nil {
		return ListResult{}, err
	}

	items := make([]ListItem, 0, len(page))
	for _, c := range page {
		items = append(items, ListItem{
			CampaignID:   c.ID,
			PatientName:  names[c.PatientID],
			CampaignType: c.CampaignType,
			Status:       c.Status,
			LastUpdated:  c.UpdatedAt,
		})
	}
	return ListResult{
		Campaigns: items,
		Pagination: Pagination{
			TotalItems:  total,
			TotalPages:  (total + req.Limit - 1) / req.Limit,
			CurrentPage: req.Page,
		},
	}, nil
}

// Details returns the campaign summary and its interactions in time order.
func (s *Service) Details(ctx context.Context, id string) (Details, error) {
	ctx, span := campaignsTracer.Start(ctx, "campaigns.details")
	defer span.End()
	span.SetAttributes(attribute.String("engagement.campaign_id", id))

	c, err := s.Get(ctx, id)
	if err != nil {
		return Details{}, err
	}
	docs, err := s.store.Find(ctx, InteractionsCollection,
		docstore.Where(docstore.Eq("campaign_id", id)).OrderBy(docstore.Asc("timestamp")))
	if err != nil {
		span.RecordError(err)
		return Details{}, fmt.Errorf("campaigns: load interactions: %w", err)
	}
	history := make([]HistoryEntry, 0, len(docs))
	for _, doc := range docs {
		var in Interaction
		if err := docstore.Decode(doc, &in); err != nil {
			return Details{}, err
		}
		history = append(history, HistoryEntry{Direction: in.Direction, Content: in.Content, Timestamp: in.Timestamp})
	}
	names, err := s.patients.DisplayNames(ctx, []string{c.PatientID})
	if err != nil {
		return Details{}, err
	}
	return Details{
		Campaign: Summary{
			CampaignID:        c.ID,
			PatientName:       names[c.PatientID],
			Status:            c.Status,
			EngagementSummary: c.EngagementSummary,
		},
		History: history,
	}, nil
}

// transition applies action to the campaign under its lock. before runs
// after the transition is validated and before the status is stored.
func (s *Service) transition(ctx context.Context, id string, action Action, requested Status, before func(context.Context, time.Time) error) (Campaign, Status, error) {
	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "campaign:"+id)
		if errors.Is(err, locks.ErrNotAcquired) {
			return Campaign{}, "", apperr.Conflict("Campaign is being updated by another request; retry shortly.")
		}
		if err != nil {
			return Campaign{}, "", fmt.Errorf("campaigns: lock: %w", err)
		}
		defer release()
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return Campaign{}, "", err
	}
	next, err := NextStatus(c.Status, action, requested)
	if err != nil {
		return Campaign{}, "", apperr.Wrap(apperr.KindInvalidArgument,
			fmt.Sprintf("Cannot %s campaign in status %s", action, c.Status), err)
	}

	now := s.now().UTC()
	if before != nil {
		if err := before(ctx, now); err != nil {
			return Campaign{}, "", err
		}
	}
	err = s.store.Update(ctx, Collection, id, docstore.Document{
		"status":     string(next),
		"updated_at": now,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return Campaign{}, "", apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return Campaign{}, "", fmt.Errorf("campaigns: update status: %w", err)
	}

	s.metrics.ObserveTransition(string(action), string(c.Status), string(next))
	s.logger.Info("campaign status changed", "campaign_id", id, "action", action, "from", c.Status, "to", next)
	if s.audit != nil {
		change := compliance.StatusChange{Action: string(action), From: string(c.Status), To: string(next)}
		if err := s.audit.LogStatusChange(ctx, id, change); err != nil {
			s.logger.Warn("failed to audit status change", "campaign_id", id, "error", err)
		}
	}
	return c, next, nil
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	s.metrics.ObserveOperation(operation, start, *err)
}

func (s *Service) deliver(ctx context.Context, c Campaign, message string) {
	if s.messenger == nil {
		return
	}
	patient, err := s.patients.Get(ctx, c.PatientID)
	if err != nil {
		s.logger.Warn("campaign reply not delivered: patient unavailable", "campaign_id", c.ID, "error", err)
		return
	}
	err = s.messenger.SendCampaignMessage(ctx, notify.Recipient{Name: patient.Name, Email: patient.Email}, message)
	if err != nil {
		s.logger.Warn("campaign reply not delivered", "campaign_id", c.ID, "patient_id", patient.ID, "error", err)
	}
}

func (s *Service) recordAudit(ctx context.Context, event compliance.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record audit event", "event_type", event.EventType, "entity_id", event.EntityID, "error", err)
	}
}

func mustJSON(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}
