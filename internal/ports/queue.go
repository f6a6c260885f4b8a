package ports

import (
	"context"
	"time"
)

// ReplayScheduler enqueues deferred replays of dead-lettered deliveries for
// the background worker.
type ReplayScheduler interface {
	ScheduleReplay(ctx context.Context, deadLetterID string, delay time.Duration) error
}
