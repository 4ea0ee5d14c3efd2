// Package compliance keeps an append-only audit trail of patient-record
// changes made through the workflows.
package compliance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditEventType represents the type of audited change.
type AuditEventType string

const (
	// EventCampaignCreated is logged when a recovery campaign is opened.
	EventCampaignCreated AuditEventType = "campaign.created"
	// EventCampaignStatusChanged is logged for every campaign status transition.
	EventCampaignStatusChanged AuditEventType = "campaign.status_changed"
	// EventAppointmentCompleted is logged when an appointment is completed.
	EventAppointmentCompleted AuditEventType = "appointment.completed"
	// EventAppointmentDeleted is logged with a snapshot of the removed appointment.
	EventAppointmentDeleted AuditEventType = "appointment.deleted"
)

// AuditEvent represents an immutable audit record.
type AuditEvent struct {
	ID         string          `json:"id"`
	EventType  AuditEventType  `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Actor      string          `json:"actor,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// StatusChange is the detail payload of EventCampaignStatusChanged.
type StatusChange struct {
	Action string `json:"action"`
	From   string `json:"from"`
	To     string `json:"to"`
}

// Recorder is what the workflows depend on.
type Recorder interface {
	LogEvent(ctx context.Context, event AuditEvent) error
	LogStatusChange(ctx context.Context, campaignID string, change StatusChange) error
}

// AuditService writes audit events to Postgres. A service without a
// database accepts and drops events.
type AuditService struct {
	db *sql.DB
}

var _ Recorder = (*AuditService)(nil)

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB) *AuditService {
	return &AuditService{db: db}
}

// Enabled reports whether events are persisted.
func (s *AuditService) Enabled() bool {
	return s != nil && s.db != nil
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if !s.Enabled() {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Actor == "" {
		event.Actor = ActorFromContext(ctx)
	}
	details := event.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO audit_events (
			id, event_type, entity_type, entity_id, actor, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		event.EntityType,
		event.EntityID,
		event.Actor,
		[]byte(details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// LogStatusChange records a campaign status transition.
func (s *AuditService) LogStatusChange(ctx context.Context, campaignID string, change StatusChange) error {
	details, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("compliance: marshal status change: %w", err)
	}
	return s.LogEvent(ctx, AuditEvent{
		EventType:  EventCampaignStatusChanged,
		EntityType: "campaign",
		EntityID:   campaignID,
		Details:    details,
	})
}

// QueryEvents retrieves audit events with filters, newest first.
func (s *AuditService) QueryEvents(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	if !s.Enabled() {
		return []AuditEvent{}, nil
	}

	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.EntityID != "" {
		add("entity_id = $%d", filter.EntityID)
	}
	if filter.EventType != "" {
		add("event_type = $%d", string(filter.EventType))
	}
	if !filter.StartTime.IsZero() {
		add("created_at >= $%d", filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		add("created_at <= $%d", filter.EndTime)
	}

	query := `
		SELECT id, event_type, entity_type, entity_id, actor, details, created_at
		FROM audit_events`
	if len(clauses) > 0 {
		query += "\n\t\tWHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 || limit > MaxQueryLimit {
		limit = MaxQueryLimit
	}
	query += fmt.Sprintf(" LIMIT %d", limit)
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("compliance: failed to query audit events: %w", err)
	}
	defer rows.Close()

	events := []AuditEvent{}
	for rows.Next() {
		var (
			e         AuditEvent
			eventType string
			details   []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &e.EntityType, &e.EntityID, &e.Actor, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("compliance: failed to scan audit event: %w", err)
		}
		e.EventType = AuditEventType(eventType)
		e.Details = json.RawMessage(details)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("compliance: failed to read audit events: %w", err)
	}
	return events, nil
}

// MaxQueryLimit caps a single audit query.
const MaxQueryLimit = 500

// AuditFilter specifies criteria for querying audit events.
type AuditFilter struct {
	EntityID  string
	EventType AuditEventType
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

type actorKey struct{}

// WithActor attaches the identity performing the request.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the identity set by WithActor, or "system".
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return "system"
}
