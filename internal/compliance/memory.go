package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRecorder keeps audit events in memory. It backs workflow tests and
// local runs without a database.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []AuditEvent
}

var _ Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) LogEvent(ctx context.Context, event AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Actor == "" {
		event.Actor = ActorFromContext(ctx)
	}
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRecorder) LogStatusChange(ctx context.Context, campaignID string, change StatusChange) error {
	details, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("compliance: marshal status change: %w", err)
	}
	return m.LogEvent(ctx, AuditEvent{
		EventType:  EventCampaignStatusChanged,
		EntityType: "campaign",
		EntityID:   campaignID,
		Details:    details,
	})
}

// Events returns a copy of the recorded events in insertion order.
func (m *MemoryRecorder) Events() []AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEvent(nil), m.events...)
}
