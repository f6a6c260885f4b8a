package application

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"urgify-core/internal/domain"
	"urgify-core/internal/metrics"
	"urgify-core/internal/ports"
)

// DefaultMaxReplayRetries caps how often a dead letter is retried before it
// is left for manual remediation.
const DefaultMaxReplayRetries = 3

// Replayer re-runs dead-lettered deliveries. The handler is looked up by the
// stored topic at replay time; the closure that originally failed is long out
// of scope.
type Replayer struct {
	deadLetters ports.DeadLetterStore
	registry    *Registry
	logger      zerolog.Logger
}

// NewReplayer creates a new dead-letter replayer
func NewReplayer(deadLetters ports.DeadLetterStore, registry *Registry, logger zerolog.Logger) *Replayer {
	return &Replayer{deadLetters: deadLetters, registry: registry, logger: logger}
}

// Replay re-dispatches one dead letter. On success retriedAt is set and
// retryCount incremented; on failure retryCount is incremented, lastError
// replaced, and the handler's error returned to the caller.
func (r *Replayer) Replay(ctx context.Context, id string) error {
	rec, err := r.deadLetters.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if rec.RetriedAt != nil {
		r.logger.Info().Str("deadLetterId", id).Msg("Dead letter already replayed, skipping")
		return nil
	}

	handler, ok := r.registry.Lookup(rec.Topic)
	if !ok {
		return fmt.Errorf("no handler registered for topic %s", rec.Topic)
	}

	if handlerErr := handler(ctx, rec.Shop, rec.Payload); handlerErr != nil {
		metrics.DeadLetterReplaysTotal.WithLabelValues("failure").Inc()
		if markErr := r.deadLetters.MarkReplayFailed(ctx, id, handlerErr.Error()); markErr != nil {
			r.logger.Error().Err(markErr).Str("deadLetterId", id).Msg("Failed to record replay failure")
		}
		r.logger.Warn().
			Err(handlerErr).
			Str("deadLetterId", id).
			Str("topic", rec.Topic).
			Str("shop", rec.Shop).
			Int("retryCount", rec.RetryCount+1).
			Msg("Dead-letter replay failed")
		return handlerErr
	}

	if err := r.deadLetters.MarkReplayed(ctx, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("replay succeeded but update failed: %w", err)
	}
	metrics.DeadLetterReplaysTotal.WithLabelValues("success").Inc()
	r.logger.Info().
		Str("deadLetterId", id).
		Str("topic", rec.Topic).
		Str("shop", rec.Shop).
		Msg("Dead-letter replay succeeded")
	return nil
}

// ReplayBatch replays every unresolved dead letter under the retry cap,
// oldest first, and reports the outcome counts. Individual failures do not
// stop the batch.
func (r *Replayer) ReplayBatch(ctx context.Context, maxRetries int) (succeeded, failed int, err error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxReplayRetries
	}
	records, err := r.deadLetters.ListUnprocessed(ctx, maxRetries)
	if err != nil {
		return 0, 0, err
	}
	for i := range records {
		if err := r.Replay(ctx, records[i].ID); err != nil {
			failed++
			continue
		}
		succeeded++
	}
	r.logger.Info().
		Int("succeeded", succeeded).
		Int("failed", failed).
		Msg("Dead-letter batch replay finished")
	return succeeded, failed, nil
}

// List returns the unresolved dead letters the next batch would replay.
func (r *Replayer) List(ctx context.Context, maxRetries int) ([]domain.DeadLetterRecord, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxReplayRetries
	}
	return r.deadLetters.ListUnprocessed(ctx, maxRetries)
}
