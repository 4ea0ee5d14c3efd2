package events

import (
	"context"

	"github.com/wolfman30/mundos-engagement/internal/observability/metrics"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

// Publisher delivers envelopes to a transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// LogPublisher writes envelopes to the structured log. It is the default
// when no broker is configured.
type LogPublisher struct {
	logger *logging.Logger
}

func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(ctx context.Context, env Envelope) error {
	p.logger.Info("domain event",
		"event_id", env.EventID.String(),
		"event_type", env.EventType,
		"aggregate", env.Aggregate,
	)
	return nil
}

// Emitter publishes events on behalf of the workflows. Delivery is best
// effort: the state change has already been stored when an event is
// emitted, so failures are logged and counted rather than returned.
type Emitter struct {
	publisher Publisher
	logger    *logging.Logger
	metrics   *metrics.WorkflowMetrics
}

// NewEmitter wraps publisher. A nil publisher discards events.
func NewEmitter(publisher Publisher, logger *logging.Logger, m *metrics.WorkflowMetrics) *Emitter {
	if logger == nil {
		logger = logging.Default()
	}
	return &Emitter{publisher: publisher, logger: logger, metrics: m}
}

// Emit publishes evt for aggregate.
func (e *Emitter) Emit(ctx context.Context, aggregate string, evt CanonicalEvent) {
	if e == nil || e.publisher == nil {
		return
	}
	env, err := NewEnvelope(aggregate, evt)
	if err != nil {
		e.logger.Error("failed to build event envelope", "aggregate", aggregate, "error", err)
		return
	}
	err = e.publisher.Publish(ctx, env)
	e.metrics.ObserveEventPublished(env.EventType, err)
	if err != nil {
		e.logger.Warn("failed to publish event",
			"event_type", env.EventType,
			"aggregate", aggregate,
			"error", err,
		)
	}
}
