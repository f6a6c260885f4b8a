package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// Task types consumed by the background worker.
const (
	TypeDeadLetterReplay = "deadletter:replay"
	TypeDeadLetterSweep  = "deadletter:sweep"
	TypeLedgerPrune      = "ledger:prune"
)

// QueueName is the asynq queue all urgify tasks run on.
const QueueName = "urgify"

// ReplayTaskPayload carries the dead letter to replay.
type ReplayTaskPayload struct {
	DeadLetterID string `json:"dead_letter_id"`
}

// NewReplayTask builds the task enqueued when a delivery dead-letters.
func NewReplayTask(deadLetterID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReplayTaskPayload{DeadLetterID: deadLetterID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode replay task: %w", err)
	}
	return asynq.NewTask(TypeDeadLetterReplay, payload), nil
}

// NewSweepTask builds the periodic batch-replay task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeDeadLetterSweep, nil)
}

// NewLedgerPruneTask builds the periodic idempotency-retention task.
func NewLedgerPruneTask() *asynq.Task {
	return asynq.NewTask(TypeLedgerPrune, nil)
}
