package workers

import (
	"context"
	"log/slog"

	"discussion-lab/contract"
	"discussion-lab/domain/event"
)

// SinkWorker drains the persistence channel and feeds every event to the
// permanent sinks (archive, timeline, logging). It provides best-effort
// delivery with no guarantees regarding durability or retries; a failing
// sink is logged and skipped so the others still see the event.
type SinkWorker struct {
	log    *slog.Logger
	events <-chan event.Event
	sinks  []contract.EventSink
}

func NewSinkWorker(log *slog.Logger, events <-chan event.Event, sinks ...contract.EventSink) *SinkWorker {
	return &SinkWorker{log: log, events: events, sinks: sinks}
}

func (w *SinkWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping sink worker")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.consume(ctx, evt)
		}
	}
}

func (w *SinkWorker) consume(ctx context.Context, evt event.Event) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, evt); err != nil {
			w.log.Warn("permanent sink rejected event", "event", evt.Name(), "error", err)
		}
	}
}
