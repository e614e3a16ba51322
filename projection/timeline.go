// Package projection builds local read models from observed events.
// It never emits events back into the rooms.
package projection

import (
	"context"
	"sync"
	"time"

	"discussion-lab/domain"
	"discussion-lab/domain/event"
)

// Entry is one line of a session timeline.
type Entry struct {
	Kind    string    `json:"kind"`
	Speaker string    `json:"speaker,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Timeline keeps a per-session feed of the conversational events. It is a
// permanent sink: entries survive session teardown, so operators can
// inspect what happened in a room after it emptied out.
type Timeline struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID][]Entry
}

func NewTimeline() *Timeline {
	return &Timeline{sessions: make(map[domain.SessionID][]Entry)}
}

func (t *Timeline) Consume(_ context.Context, e event.Event) error {
	entry, ok := toEntry(e)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[e.SessionID()] = append(t.sessions[e.SessionID()], entry)
	return nil
}

// Entries returns a copy of the timeline for one session, oldest first.
func (t *Timeline) Entries(sessionID domain.SessionID) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	entries := t.sessions[sessionID]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

func toEntry(e event.Event) (Entry, bool) {
	switch evt := e.(type) {
	case event.NewMessage:
		return Entry{Kind: evt.Name(), Speaker: evt.Agent, Message: evt.Message, At: evt.Timestamp}, true
	case event.AgentResponse:
		return Entry{Kind: evt.Name(), Speaker: evt.AgentName, Message: evt.Message, At: evt.Timestamp}, true
	case event.DirectQuestion:
		return Entry{Kind: evt.Name(), Speaker: evt.Agent, Message: evt.Question, At: time.Now().UTC()}, true
	case event.DirectAnswer:
		return Entry{Kind: evt.Name(), Speaker: evt.AgentName, Message: evt.Message, At: evt.Timestamp}, true
	case event.ConsensusAnalysis:
		return Entry{Kind: evt.Name(), Message: evt.Analysis, At: time.Now().UTC()}, true
	case event.DiscussionSummary:
		return Entry{Kind: evt.Name(), Message: evt.Summary, At: time.Now().UTC()}, true
	case event.DiscussionEnded:
		return Entry{Kind: evt.Name(), Message: evt.FinalReport, At: time.Now().UTC()}, true
	default:
		return Entry{}, false
	}
}
