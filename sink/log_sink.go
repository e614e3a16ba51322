package sink

import (
	"context"
	"log/slog"

	"discussion-lab/domain/event"
)

// LogSink traces every event at debug level. Handy during development,
// harmless in production where debug is filtered out.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) LogSink {
	return LogSink{log: log}
}

func (s LogSink) Consume(_ context.Context, e event.Event) error {
	s.log.Debug("event", "name", e.Name(), "session", e.SessionID())
	return nil
}
