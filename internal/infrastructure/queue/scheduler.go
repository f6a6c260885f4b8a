package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// AsynqScheduler enqueues deferred dead-letter replays for the worker
// binary. Enqueueing is best-effort from the processor's point of view;
// the sweep task picks up anything that slipped through.
type AsynqScheduler struct {
	client *asynq.Client
	logger zerolog.Logger
}

// NewAsynqScheduler creates a new replay scheduler backed by asynq
func NewAsynqScheduler(client *asynq.Client, logger zerolog.Logger) *AsynqScheduler {
	return &AsynqScheduler{client: client, logger: logger}
}

// ScheduleReplay enqueues one replay task to run after delay.
func (s *AsynqScheduler) ScheduleReplay(ctx context.Context, deadLetterID string, delay time.Duration) error {
	task, err := NewReplayTask(deadLetterID)
	if err != nil {
		return err
	}
	info, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueName),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0), // replay bookkeeping lives in the dead_letter row, not asynq
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue replay task: %w", err)
	}
	s.logger.Debug().
		Str("deadLetterId", deadLetterID).
		Str("taskId", info.ID).
		Dur("delay", delay).
		Msg("Scheduled dead-letter replay")
	return nil
}
