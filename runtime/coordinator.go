// Package runtime owns the live discussion rooms: the session registry,
// the per-connection join/leave lifecycle, and the fan-out of every event
// to the connections of a room. It orchestrates the system without
// containing persona or prompt logic.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/samber/lo"

	"discussion-lab/contract"
	"discussion-lab/domain"
	"discussion-lab/domain/event"
	errs "discussion-lab/errors"
	"discussion-lab/moderation"
	"discussion-lab/observability"
	"discussion-lab/persona"
)

// room pairs a session with its orchestrator handle. The room mutex
// serializes mutation and broadcast order per session, including the
// orchestrator call itself: one turn at a time per discussion.
type room struct {
	mu       sync.Mutex
	session  *domain.Session
	orch     contract.DiscussionOrchestrator
	personas []persona.Descriptor
}

// RoomInfo is the read-only introspection view of one live session.
type RoomInfo struct {
	SessionID    domain.SessionID     `json:"session_id"`
	Topic        string               `json:"topic"`
	CreatedAt    time.Time            `json:"created_at"`
	Participants []string             `json:"participants"`
	TurnCount    int                  `json:"turn_count"`
	Personas     []persona.Descriptor `json:"personas"`
}

// Coordinator exclusively owns the session registry; no other component
// mutates a session directly. All state lives in memory for the lifetime
// of the process.
type Coordinator struct {
	log                 *slog.Logger
	mu                  sync.RWMutex
	rooms               map[domain.SessionID]*room
	registry            contract.Registry
	factory             contract.OrchestratorFactory
	broadcaster         contract.RoomBroadcaster
	moderator           *moderation.Moderator
	monitor             *observability.Monitor
	orchestratorTimeout time.Duration
}

func NewCoordinator(log *slog.Logger, registry contract.Registry, factory contract.OrchestratorFactory,
	broadcaster contract.RoomBroadcaster, moderator *moderation.Moderator,
	monitor *observability.Monitor, orchestratorTimeout time.Duration) *Coordinator {
	return &Coordinator{
		log:                 log,
		rooms:               make(map[domain.SessionID]*room),
		registry:            registry,
		factory:             factory,
		broadcaster:         broadcaster,
		moderator:           moderator,
		monitor:             monitor,
		orchestratorTimeout: orchestratorTimeout,
	}
}

// Join attaches a connection to the room for the requested session id,
// creating the session on first join. A second join for the same id
// attaches and ignores topic, personas and context: first writer wins.
// The joiner alone receives the session snapshot; the room is notified
// with the updated participant count.
//
// If orchestrator initialization fails, the joiner alone receives an
// error and no session is created.
func (c *Coordinator) Join(ctx context.Context, connectionID string, sink contract.EventSink, p event.JoinDiscussion) {
	sessionID := domain.SessionID(p.Session)

	r := c.lookup(sessionID)
	if r == nil {
		selected := persona.Select(p.SelectedAgents)
		if len(selected) == 0 {
			selected = persona.Defaults()
		}

		orch := c.factory.New()
		tctx, cancel := context.WithTimeout(ctx, c.orchestratorTimeout)
		c.monitor.IncrOrchestratorCalls()
		opening, err := orch.Initialize(tctx, p.Topic, selected, p.Context)
		cancel()
		if err != nil {
			c.monitor.IncrOrchestratorFailures()
			// The joiner is not subscribed yet, so the error goes
			// straight to its sink instead of through the registry.
			c.log.Warn("failed to start discussion", "session", p.Session, "connection", connectionID, "error", err)
			if consumeErr := sink.Consume(ctx, event.Error{
				Session: p.Session,
				Message: "failed to start discussion",
				Err:     err.Error(),
				Target:  connectionID,
			}); consumeErr != nil {
				c.log.Warn("failed to report error to joiner", "connection", connectionID, "error", consumeErr)
			}
			return
		}

		c.mu.Lock()
		if existing, ok := c.rooms[sessionID]; ok {
			// Lost a concurrent first-join race: the winner's topic and
			// personas stand, our orchestrator handle is discarded.
			r = existing
		} else {
			session := domain.NewSession(sessionID, p.Topic, domain.Turn{
				Speaker: domain.SpeakerModerator,
				Message: opening,
				At:      time.Now().UTC(),
			})
			r = &room{session: session, orch: orch, personas: selected}
			c.rooms[sessionID] = r
		}
		c.mu.Unlock()
	}

	c.registry.Subscribe(connectionID, sessionID, sink)

	r.mu.Lock()
	defer r.mu.Unlock()

	added := r.session.AddParticipant(connectionID, p.UserID)
	c.broadcaster.Publish(ctx, event.DiscussionInitialized{
		Session:          p.Session,
		Topic:            r.session.Topic,
		Participants:     toParticipantInfos(r.session.Participants()),
		OpeningStatement: r.session.OpeningStatement(),
		Target:           connectionID,
	})
	if added {
		c.broadcaster.Publish(ctx, event.UserJoined{
			Session:          p.Session,
			UserID:           p.UserID,
			ParticipantCount: r.session.ParticipantCount(),
		})
	}
}

// PostMessage processes a human turn: the orchestrator produces zero or
// more persona replies plus a progress metric, then the room receives the
// human message, each reply in orchestrator order, and the progress
// update. A failed call leaves the history untouched and is reported to
// the sender only.
func (c *Coordinator) PostMessage(ctx context.Context, connectionID string, p event.UserMessage) {
	r := c.lookup(domain.SessionID(p.Session))
	if r == nil {
		c.failTo(ctx, connectionID, p.Session, "unknown discussion", errs.ErrSessionNotFound)
		return
	}

	clean := c.moderator.Censor(p.Message)

	r.mu.Lock()
	defer r.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, c.orchestratorTimeout)
	c.monitor.IncrOrchestratorCalls()
	result, err := r.orch.ProcessHumanTurn(tctx, clean, p.FocusAgent)
	cancel()
	if err != nil {
		c.monitor.IncrOrchestratorFailures()
		c.failTo(ctx, connectionID, p.Session, "failed to process message", err)
		return
	}

	now := time.Now().UTC()
	language := detectLanguage(clean)
	r.session.AppendTurn(domain.Turn{
		Speaker:  domain.SpeakerUser,
		Message:  clean,
		Language: language,
		At:       now,
	})
	c.broadcaster.Publish(ctx, event.NewMessage{
		Session:   p.Session,
		Agent:     domain.SpeakerUser,
		Message:   clean,
		Timestamp: now,
		Type:      "user_input",
		Language:  language,
	})

	for _, reply := range result.Replies {
		role := ""
		if d, ok := persona.Lookup(persona.Type(reply.Persona)); ok {
			role = d.Role
		}
		r.session.AppendTurn(domain.Turn{
			Speaker:     reply.Persona,
			DisplayName: reply.DisplayName,
			Message:     reply.Message,
			At:          reply.At,
		})
		c.broadcaster.Publish(ctx, event.AgentResponse{
			Session:   p.Session,
			Agent:     reply.Persona,
			AgentName: reply.DisplayName,
			Role:      role,
			Message:   reply.Message,
			Timestamp: reply.At,
		})
	}

	c.broadcaster.Publish(ctx, event.DiscussionProgress{Session: p.Session, Progress: result.Progress})
}

// AskPersona routes a targeted question to one persona and broadcasts the
// question followed by the single answer.
func (c *Coordinator) AskPersona(ctx context.Context, connectionID string, p event.AskAgent) {
	r := c.lookup(domain.SessionID(p.Session))
	if r == nil {
		c.failTo(ctx, connectionID, p.Session, "unknown discussion", errs.ErrSessionNotFound)
		return
	}

	clean := c.moderator.Censor(p.Question)

	r.mu.Lock()
	defer r.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, c.orchestratorTimeout)
	c.monitor.IncrOrchestratorCalls()
	reply, err := r.orch.AskPersona(tctx, p.AgentType, clean)
	cancel()
	if err != nil {
		c.monitor.IncrOrchestratorFailures()
		c.failTo(ctx, connectionID, p.Session, "failed to ask persona", err)
		return
	}

	now := time.Now().UTC()
	r.session.AppendTurn(domain.Turn{
		Speaker:  domain.SpeakerUser,
		Message:  clean,
		Language: detectLanguage(clean),
		At:       now,
	})
	c.broadcaster.Publish(ctx, event.DirectQuestion{Session: p.Session, Agent: p.AgentType, Question: clean})

	r.session.AppendTurn(domain.Turn{
		Speaker:     reply.Persona,
		DisplayName: reply.DisplayName,
		Message:     reply.Message,
		At:          reply.At,
	})
	c.broadcaster.Publish(ctx, event.DirectAnswer{
		Session:   p.Session,
		Agent:     reply.Persona,
		AgentName: reply.DisplayName,
		Message:   reply.Message,
		Timestamp: reply.At,
	})
}

// RequestConsensus is read-style: it never appends to the coordinator's
// view of the history.
func (c *Coordinator) RequestConsensus(ctx context.Context, connectionID string, p event.SessionRequest) {
	r := c.lookup(domain.SessionID(p.Session))
	if r == nil {
		c.failTo(ctx, connectionID, p.Session, "unknown discussion", errs.ErrSessionNotFound)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, c.orchestratorTimeout)
	c.monitor.IncrOrchestratorCalls()
	analysis, err := r.orch.AnalyzeConsensus(tctx)
	cancel()
	if err != nil {
		c.monitor.IncrOrchestratorFailures()
		c.failTo(ctx, connectionID, p.Session, "failed to analyze consensus", err)
		return
	}

	c.broadcaster.Publish(ctx, event.ConsensusAnalysis{Session: p.Session, Analysis: analysis})
}

func (c *Coordinator) RequestSummary(ctx context.Context, connectionID string, p event.SessionRequest) {
	r := c.lookup(domain.SessionID(p.Session))
	if r == nil {
		c.failTo(ctx, connectionID, p.Session, "unknown discussion", errs.ErrSessionNotFound)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tctx, cancel := context.WithTimeout(ctx, c.orchestratorTimeout)
	c.monitor.IncrOrchestratorCalls()
	summary, err := r.orch.Summarize(tctx)
	cancel()
	if err != nil {
		c.monitor.IncrOrchestratorFailures()
		c.failTo(ctx, connectionID, p.Session, "failed to summarize discussion", err)
		return
	}

	c.broadcaster.Publish(ctx, event.DiscussionSummary{
		Session: p.Session,
		Summary: summary.Text,
		Metrics: summary.Metrics,
	})
}

// EndDiscussion broadcasts the closing report to the whole room, then
// removes the session unconditionally and detaches every member from
// the room. A failing Close leaves the session exactly as it was.
func (c *Coordinator) EndDiscussion(ctx context.Context, connectionID string, p event.SessionRequest) {
	sessionID := domain.SessionID(p.Session)
	r := c.lookup(sessionID)
	if r == nil {
		c.failTo(ctx, connectionID, p.Session, "unknown discussion", errs.ErrSessionNotFound)
		return
	}

	r.mu.Lock()
	tctx, cancel := context.WithTimeout(ctx, c.orchestratorTimeout)
	c.monitor.IncrOrchestratorCalls()
	report, err := r.orch.Close(tctx)
	cancel()
	if err != nil {
		r.mu.Unlock()
		c.monitor.IncrOrchestratorFailures()
		c.failTo(ctx, connectionID, p.Session, "failed to end discussion", err)
		return
	}

	c.broadcaster.Publish(ctx, event.DiscussionEnded{
		Session:     p.Session,
		FinalReport: report,
		Topic:       r.session.Topic,
	})
	r.mu.Unlock()

	c.mu.Lock()
	delete(c.rooms, sessionID)
	c.mu.Unlock()

	c.registry.DropRoom(sessionID)
}

// Typing and StopTyping are stateless fan-out: no session lookup, the
// broadcast simply reaches nobody when the room does not exist.
func (c *Coordinator) Typing(ctx context.Context, p event.TypingNotice) {
	c.broadcaster.Publish(ctx, event.UserTyping{Session: p.Session, UserID: p.UserID, Timestamp: time.Now().UTC()})
}

func (c *Coordinator) StopTyping(ctx context.Context, p event.TypingNotice) {
	c.broadcaster.Publish(ctx, event.UserStoppedTyping{Session: p.Session, UserID: p.UserID, Timestamp: time.Now().UTC()})
}

// AgentList serves the static persona catalog to the requester only.
func (c *Coordinator) AgentList(ctx context.Context, connectionID string) {
	c.broadcaster.Publish(ctx, event.AgentList{Agents: persona.Catalog(), Target: connectionID})
}

// Disconnect removes the connection from every session it was part of,
// notifying each affected room and deleting sessions left empty.
func (c *Coordinator) Disconnect(ctx context.Context, connectionID string) {
	c.registry.UnsubscribeAll(connectionID)

	c.mu.Lock()
	snapshot := make(map[domain.SessionID]*room, len(c.rooms))
	for id, r := range c.rooms {
		snapshot[id] = r
	}
	c.mu.Unlock()

	var emptied []domain.SessionID
	for id, r := range snapshot {
		r.mu.Lock()
		if !r.session.RemoveParticipant(connectionID) {
			r.mu.Unlock()
			continue
		}
		count := r.session.ParticipantCount()
		if count == 0 {
			emptied = append(emptied, id)
		} else {
			c.broadcaster.Publish(ctx, event.UserLeft{Session: string(id), ParticipantCount: count})
		}
		r.mu.Unlock()
	}

	if len(emptied) > 0 {
		c.mu.Lock()
		for _, id := range emptied {
			delete(c.rooms, id)
		}
		c.mu.Unlock()
	}
}

func (c *Coordinator) SessionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rooms)
}

func (c *Coordinator) SessionIDs() []domain.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Keys(c.rooms)
}

// RoomInfo returns the live view of one session, or false once the
// session ended or emptied out.
func (c *Coordinator) RoomInfo(sessionID domain.SessionID) (RoomInfo, bool) {
	r := c.lookup(sessionID)
	if r == nil {
		return RoomInfo{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return RoomInfo{
		SessionID: sessionID,
		Topic:     r.session.Topic,
		CreatedAt: r.session.CreatedAt,
		Participants: lo.Map(r.session.Participants(), func(p domain.Participant, _ int) string {
			return p.UserID
		}),
		TurnCount: r.session.TurnCount(),
		Personas:  r.personas,
	}, true
}

func (c *Coordinator) lookup(sessionID domain.SessionID) *room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[sessionID]
}

// failTo reports a failure to the invoking connection only; the rest of
// the room observes nothing.
func (c *Coordinator) failTo(ctx context.Context, connectionID, session, message string, err error) {
	c.log.Warn(message, "session", session, "connection", connectionID, "error", err)
	c.broadcaster.Publish(ctx, event.Error{
		Session: session,
		Message: message,
		Err:     err.Error(),
		Target:  connectionID,
	})
}

func toParticipantInfos(participants []domain.Participant) []event.ParticipantInfo {
	return lo.Map(participants, func(p domain.Participant, _ int) event.ParticipantInfo {
		return event.ParticipantInfo{UserID: p.UserID, JoinedAt: p.JoinedAt}
	})
}

// detectLanguage tags user turns with an ISO 639-3 code when detection
// is confident enough, empty otherwise.
func detectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return whatlanggo.LangToString(info.Lang)
}
