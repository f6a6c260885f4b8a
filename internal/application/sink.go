package application

import (
	"github.com/rs/zerolog"

	"urgify-core/internal/domain"
)

// LogSink is the fallback dead-letter writer used when the persistent store
// is unreachable. It emits the whole record as one structured log line;
// losing the pretty storage beats losing the failure.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a new log-backed dead-letter sink
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Record logs the dead-letter record. Never fails, never blocks.
func (s *LogSink) Record(rec *domain.DeadLetterRecord) {
	s.logger.Error().
		Str("topic", rec.Topic).
		Str("shop", rec.Shop).
		RawJSON("payload", rec.Payload).
		Str("error", rec.Error).
		Msg("DEAD LETTER (store unavailable)")
}
