package runtime

import (
	"context"
	"log/slog"
	"time"

	"discussion-lab/contract"
	"discussion-lab/domain/event"
	"discussion-lab/observability"
)

// Fanout delivers events to the connections of a room, or to a single
// targeted connection, synchronously and in publish order. Delivery is
// best-effort: connection sinks are non-blocking and a failed sink never
// fails the publishing operation.
//
// Every event is additionally offered to the persistence channel consumed
// by the supervised sink worker (archive, timeline, logs); a full channel
// drops the copy rather than stalling the room.
type Fanout struct {
	log         *slog.Logger
	registry    contract.Registry
	persist     chan<- event.Event
	sinkTimeout time.Duration
	monitor     *observability.Monitor
}

func NewFanout(log *slog.Logger, registry contract.Registry, persist chan<- event.Event,
	sinkTimeout time.Duration, monitor *observability.Monitor) *Fanout {
	return &Fanout{
		log:         log,
		registry:    registry,
		persist:     persist,
		sinkTimeout: sinkTimeout,
		monitor:     monitor,
	}
}

func (f *Fanout) Publish(ctx context.Context, e event.Event) {
	f.monitor.IncrEventsPublished()

	dctx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
	defer cancel()

	if targeted, ok := e.(event.Targeted); ok && targeted.TargetConnection() != "" {
		if sink, found := f.registry.SinkFor(targeted.TargetConnection()); found {
			f.deliver(dctx, sink, e)
		}
		// An unknown target means the connection is already gone; nothing to do.
	} else {
		for _, sink := range f.registry.SinksForRoom(e.SessionID()) {
			f.deliver(dctx, sink, e)
		}
	}

	select {
	case f.persist <- e:
	default:
		f.monitor.IncrEventsDropped()
		f.log.Debug("persistence copy of event lost", "event", e.Name())
	}
}

func (f *Fanout) deliver(ctx context.Context, sink contract.EventSink, e event.Event) {
	if err := sink.Consume(ctx, e); err != nil {
		f.monitor.IncrDeliveryErrors()
		f.log.Warn("event delivery failed", "event", e.Name(), "error", err)
	}
}
