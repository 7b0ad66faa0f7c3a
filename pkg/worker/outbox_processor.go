package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/internal/repository"
	"github.com/medassist/booking-api/pkg/clock"
	"github.com/medassist/booking-api/pkg/logger"
	"github.com/medassist/booking-api/pkg/messaging"
	"github.com/medassist/booking-api/pkg/metrics"
)

const maxRetryBackoff = 10 * time.Minute

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	// MaxRetries is how many polls an event may fail before it is marked failed.
	MaxRetries int
}

// OutboxProcessor relays events written by the booking transactions to the broker.
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	tx      repository.Transactor
	broker  messaging.Broker
	config  OutboxProcessorConfig
	clock   clock.Clock
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	tx repository.Transactor,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	clk clock.Clock,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	// Config validation instead of defaults
	if config.BatchSize <= 0 {
		panic("BatchSize must be greater than 0")
	}
	if config.PollInterval <= 0 {
		panic("PollInterval must be greater than 0")
	}
	if config.RetryAttempts <= 0 {
		panic("RetryAttempts must be greater than 0")
	}
	if config.RetryDelay <= 0 {
		panic("RetryDelay must be greater than 0")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 10
	}

	return &OutboxProcessor{
		repo:    repo,
		tx:      tx,
		broker:  broker,
		config:  config,
		clock:   clk,
		logger:  logger,
		metrics: metrics,
	}
}

// Interval is how often ProcessEvents should be called.
func (p *OutboxProcessor) Interval() time.Duration {
	return p.config.PollInterval
}

// ProcessEvents relays one batch of pending events.
func (p *OutboxProcessor) ProcessEvents(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	return p.tx.WithTx(ctx, func(tx *sqlx.Tx) error {
		events, err := p.repo.GetPendingEventsWithLock(ctx, tx, p.config.BatchSize)
		if err != nil {
			p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "error").Inc()
			return fmt.Errorf("failed to get pending events: %w", err)
		}
		p.metrics.DatabaseOperations.WithLabelValues("get_pending_events", "success").Inc()

		for _, event := range events {
			if err := p.processEvent(ctx, tx, event); err != nil {
				p.logger.Error(err, "Failed to process event",
					"event_id", event.ID.String(),
					"event_type", event.EventType)
			}
		}
		return nil
	})
}

func (p *OutboxProcessor) processEvent(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error {
	msg := messaging.Message{Type: event.EventType, Payload: json.RawMessage(event.Payload)}
	err := retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.broker.Publish(ctx, messaging.ChannelAppointments, msg)
	})

	if err != nil {
		errStr := err.Error()
		status := model.OutboxStatusRetry
		var retryAt *time.Time
		if event.RetryCount+1 >= p.config.MaxRetries {
			status = model.OutboxStatusFailed
			p.metrics.OutboxEventsFailed.Inc()
		} else {
			at := p.clock.Now().Add(p.backoff(event.RetryCount))
			retryAt = &at
			p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
		}
		if updateErr := p.repo.UpdateStatus(ctx, tx, event.ID, status, &errStr, retryAt); updateErr != nil {
			p.logger.Error(updateErr, "Failed to update event status", "event_id", event.ID.String())
		}
		return err
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.UpdateStatus(ctx, tx, event.ID, model.OutboxStatusProcessed, nil, nil); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

func (p *OutboxProcessor) backoff(retries int) time.Duration {
	d := p.config.PollInterval << uint(retries)
	if d <= 0 || d > maxRetryBackoff {
		return maxRetryBackoff
	}
	return d
}

// Helper retry function
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
