package application

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"urgify-core/internal/domain"
	"urgify-core/internal/metrics"
	"urgify-core/internal/ports"
)

// replayDelay is how long a dead-lettered delivery waits before the worker
// tries it again. Long enough for a transient fault to clear.
const replayDelay = 5 * time.Minute

// Processor runs one delivery through the idempotency check, the topic
// handler and the ledger write. The sequence is not transactional: a crash
// between handler success and ledger write reprocesses on redelivery, an
// accepted at-least-once gap.
type Processor struct {
	ledger      ports.Ledger
	deadLetters ports.DeadLetterStore
	sink        ports.DeadLetterSink
	scheduler   ports.ReplayScheduler
	logger      zerolog.Logger

	// inFlight guards against two concurrent deliveries of the same ID inside
	// this process; the ledger's unique insert covers the cross-process race.
	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewProcessor creates a new webhook processor. scheduler may be nil when no
// background replay queue is configured.
func NewProcessor(
	ledger ports.Ledger,
	deadLetters ports.DeadLetterStore,
	sink ports.DeadLetterSink,
	scheduler ports.ReplayScheduler,
	logger zerolog.Logger,
) *Processor {
	return &Processor{
		ledger:      ledger,
		deadLetters: deadLetters,
		sink:        sink,
		scheduler:   scheduler,
		logger:      logger,
		inFlight:    make(map[string]struct{}),
	}
}

// Process runs one delivery to completion. Already-processed deliveries
// return nil without invoking the handler. A handler failure is dead-lettered
// and the original error returned; the transport layer decides what that
// means for HTTP, never this method.
func (p *Processor) Process(ctx context.Context, delivery *domain.WebhookDelivery, handler HandlerFunc) error {
	start := time.Now()
	defer func() {
		metrics.WebhookProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	if !p.acquire(delivery.DeliveryID) {
		metrics.WebhooksDuplicateTotal.Inc()
		p.logger.Info().
			Str("deliveryId", delivery.DeliveryID).
			Str("topic", delivery.Topic).
			Str("shop", delivery.Shop).
			Msg("Delivery already in flight, skipping")
		return nil
	}
	defer p.release(delivery.DeliveryID)

	processed, err := p.ledger.IsProcessed(ctx, delivery.DeliveryID)
	if err != nil {
		// The dispatcher has nobody to return this to and the platform was
		// already acked, so the delivery must leave a trace: dead-letter it
		// (or hit the sink when the store is down too) for later replay.
		checkErr := fmt.Errorf("failed to check idempotency ledger: %w", err)
		p.deadLetter(ctx, delivery, checkErr)
		return checkErr
	}
	if processed {
		metrics.WebhooksDuplicateTotal.Inc()
		p.logger.Info().
			Str("deliveryId", delivery.DeliveryID).
			Str("topic", delivery.Topic).
			Str("shop", delivery.Shop).
			Msg("Delivery already processed, skipping")
		return nil
	}

	if err := p.invoke(ctx, delivery, handler); err != nil {
		p.deadLetter(ctx, delivery, err)
		return err
	}

	if err := p.ledger.MarkProcessed(ctx, delivery.DeliveryID, delivery.Topic, delivery.Shop); err != nil {
		// The handler already ran; a redelivery may reprocess. Rare
		// degraded-mode duplicate, accepted, but the breadcrumb must exist
		// before the duplicate arrives.
		p.logger.Error().
			Err(err).
			Str("deliveryId", delivery.DeliveryID).
			Str("topic", delivery.Topic).
			Str("shop", delivery.Shop).
			Msg("Ledger write failed after successful handler, redelivery will reprocess")
		return fmt.Errorf("handler succeeded but ledger write failed: %w", err)
	}

	metrics.WebhooksProcessedTotal.WithLabelValues(delivery.Topic).Inc()
	p.logger.Info().
		Str("deliveryId", delivery.DeliveryID).
		Str("topic", delivery.Topic).
		Str("shop", delivery.Shop).
		Msg("Webhook delivery processed")
	return nil
}

// invoke runs the handler with panics converted to errors so a broken
// handler dead-letters instead of taking the worker down.
func (p *Processor) invoke(ctx context.Context, delivery *domain.WebhookDelivery, handler HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, delivery.Shop, delivery.Payload)
}

// deadLetter records a failed delivery. The store write is best-effort: when
// it fails too, the record goes to the fallback sink so the failure is never
// silently lost.
func (p *Processor) deadLetter(ctx context.Context, delivery *domain.WebhookDelivery, procErr error) {
	metrics.WebhooksDeadLetteredTotal.WithLabelValues(delivery.Topic).Inc()
	rec := &domain.DeadLetterRecord{
		Topic:   delivery.Topic,
		Shop:    delivery.Shop,
		Payload: delivery.Payload,
		Error:   procErr.Error(),
		Stack:   string(debug.Stack()),
	}

	if err := p.deadLetters.Add(ctx, rec); err != nil {
		p.logger.Error().
			Err(err).
			Str("deliveryId", delivery.DeliveryID).
			Str("topic", delivery.Topic).
			Str("shop", delivery.Shop).
			Msg("Dead-letter write failed, falling back to log sink")
		p.sink.Record(rec)
		return
	}

	p.logger.Error().
		Err(procErr).
		Str("deliveryId", delivery.DeliveryID).
		Str("topic", delivery.Topic).
		Str("shop", delivery.Shop).
		Str("deadLetterId", rec.ID).
		Msg("Webhook processing failed, delivery dead-lettered")

	if p.scheduler != nil {
		if err := p.scheduler.ScheduleReplay(ctx, rec.ID, replayDelay); err != nil {
			p.logger.Warn().
				Err(err).
				Str("deadLetterId", rec.ID).
				Msg("Failed to schedule dead-letter replay")
		}
	}
}

func (p *Processor) acquire(deliveryID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inFlight[deliveryID]; busy {
		return false
	}
	p.inFlight[deliveryID] = struct{}{}
	return true
}

func (p *Processor) release(deliveryID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, deliveryID)
}
