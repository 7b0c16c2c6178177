package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/repository"
	"github.com/ankit50/mediMeet/internal/service/notification"
	"github.com/ankit50/mediMeet/pkg/messaging"
	"github.com/ankit50/mediMeet/pkg/metrics"
)

// Config tunes the outbox drain loop.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

// OutboxProcessor drains pending outbox events into the broker and sends
// the matching notification emails. Delivery is at-least-once: SKIP LOCKED
// keeps workers off each other's batch within a poll, but the locks release
// at statement end, so a worker that crashes mid-batch (or a slow publish
// racing the next poll) can publish an event twice. Consumers must
// deduplicate on event ID.
type OutboxProcessor struct {
	outbox   repository.OutboxRepository
	broker   messaging.Broker
	notifier *notification.Service
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	cfg      Config
}

func NewOutboxProcessor(
	outbox repository.OutboxRepository,
	broker messaging.Broker,
	notifier *notification.Service,
	m *metrics.Metrics,
	logger zerolog.Logger,
	cfg Config,
) *OutboxProcessor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &OutboxProcessor{
		outbox:   outbox,
		broker:   broker,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With().Str("component", "outbox_processor").Logger(),
		cfg:      cfg,
	}
}

// Start runs the drain loop until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Info().Dur("poll_interval", p.cfg.PollInterval).Msg("outbox processor started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("outbox processor stopped")
			return
		case <-ticker.C:
			if err := p.drainBatch(ctx); err != nil {
				p.logger.Error().Err(err).Msg("failed to drain outbox batch")
			}
		}
	}
}

func (p *OutboxProcessor) drainBatch(ctx context.Context) error {
	events, err := p.outbox.GetPendingWithLock(ctx, p.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending events: %w", err)
	}

	for _, event := range events {
		p.processEvent(ctx, event)
	}
	return nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) {
	start := time.Now()
	err := p.handle(ctx, event)
	if p.metrics != nil {
		p.metrics.OutboxProcessingLatency.Observe(time.Since(start).Seconds())
	}

	if err != nil {
		p.logger.Error().
			Err(err).
			Str("event_id", event.ID.String()).
			Str("event_type", event.EventType).
			Int("retry_count", event.RetryCount).
			Msg("failed to process outbox event")
		p.retryOrFail(ctx, event, err)
		return
	}

	if err := p.outbox.MarkProcessed(ctx, event.ID); err != nil {
		p.logger.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark event processed")
		return
	}
	if p.metrics != nil {
		p.metrics.OutboxEventsProcessed.Inc()
	}
}

func (p *OutboxProcessor) handle(ctx context.Context, event *model.OutboxEvent) error {
	if err := p.broker.Publish(ctx, event.EventType, event.Payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if p.notifier == nil {
		return nil
	}

	var payload model.AppointmentEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode event payload: %w", err)
	}

	switch event.EventType {
	case model.EventAppointmentBooked:
		return p.notifier.NotifyBooked(&payload)
	case model.EventAppointmentCancelled:
		return p.notifier.NotifyCancelled(&payload)
	case model.EventAppointmentCompleted:
		return p.notifier.NotifyCompleted(&payload)
	default:
		p.logger.Warn().Str("event_type", event.EventType).Msg("no notification for event type")
		return nil
	}
}

func (p *OutboxProcessor) retryOrFail(ctx context.Context, event *model.OutboxEvent, cause error) {
	if p.metrics != nil {
		p.metrics.OutboxEventsFailed.Inc()
	}
	if event.RetryCount+1 >= p.cfg.MaxRetries {
		if err := p.outbox.MarkFailed(ctx, event.ID, cause.Error()); err != nil {
			p.logger.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark event failed")
		}
		return
	}

	backoff := p.cfg.RetryDelay * time.Duration(1<<event.RetryCount)
	if err := p.outbox.MarkRetry(ctx, event.ID, cause.Error(), time.Now().Add(backoff)); err != nil {
		p.logger.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark event for retry")
		return
	}
	if p.metrics != nil {
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	}
}
