//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"discussion-lab/domain"
	"discussion-lab/domain/event"
	"discussion-lab/persona"
)

// PersonaReply is one persona's contribution as returned by the orchestrator.
type PersonaReply struct {
	Persona     string
	DisplayName string
	Message     string
	At          time.Time
}

// TurnResult is the outcome of one processed human turn.
type TurnResult struct {
	Replies  []PersonaReply
	Progress float64
}

type Summary struct {
	Text    string
	Metrics map[string]any
}

// DiscussionOrchestrator is the external AI-backed collaborator bound to one
// session. Calls for a given session are issued one at a time by the
// coordinator; no other ordering or idempotence is assumed.
type DiscussionOrchestrator interface {
	Initialize(ctx context.Context, topic string, personas []persona.Descriptor, background string) (string, error)
	ProcessHumanTurn(ctx context.Context, message, focusPersona string) (TurnResult, error)
	AskPersona(ctx context.Context, personaType, question string) (PersonaReply, error)
	AnalyzeConsensus(ctx context.Context) (string, error)
	Summarize(ctx context.Context) (Summary, error)
	Close(ctx context.Context) (string, error)
}

// OrchestratorFactory produces one orchestrator instance per session.
type OrchestratorFactory interface {
	New() DiscussionOrchestrator
}

type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Registry tracks which connection sinks belong to which room.
type Registry interface {
	Subscribe(connectionID string, sessionID domain.SessionID, sink EventSink)
	Unsubscribe(connectionID string, sessionID domain.SessionID)
	UnsubscribeAll(connectionID string)
	DropRoom(sessionID domain.SessionID)
	SinksForRoom(sessionID domain.SessionID) []EventSink
	SinkFor(connectionID string) (EventSink, bool)
}

// RoomBroadcaster decouples "deliver to everyone in room X" from the
// transport, so coordinator logic is testable without live connections.
type RoomBroadcaster interface {
	Publish(ctx context.Context, e event.Event)
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type Supervisor interface {
	Add(worker ...Worker) Supervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in Worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
