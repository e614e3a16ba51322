package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"discussion-lab/contract"
	"discussion-lab/domain"
	"discussion-lab/domain/event"
	"discussion-lab/moderation"
	"discussion-lab/observability"
	"discussion-lab/persona"
)

// collectSink records every event delivered to one connection.
type collectSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *collectSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *collectSink) named(name string) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, e := range s.events {
		if e.Name() == name {
			out = append(out, e)
		}
	}
	return out
}

func (s *collectSink) last() event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

// scriptedOrchestrator returns canned answers and records calls.
type scriptedOrchestrator struct {
	opening  string
	replies  []contract.PersonaReply
	progress float64
	report   string

	initErr      error
	turnErr      error
	askErr       error
	consensusErr error
	closeErr     error

	closed bool
}

func (o *scriptedOrchestrator) Initialize(context.Context, string, []persona.Descriptor, string) (string, error) {
	return o.opening, o.initErr
}

func (o *scriptedOrchestrator) ProcessHumanTurn(context.Context, string, string) (contract.TurnResult, error) {
	if o.turnErr != nil {
		return contract.TurnResult{}, o.turnErr
	}
	return contract.TurnResult{Replies: o.replies, Progress: o.progress}, nil
}

func (o *scriptedOrchestrator) AskPersona(context.Context, string, string) (contract.PersonaReply, error) {
	if o.askErr != nil {
		return contract.PersonaReply{}, o.askErr
	}
	if len(o.replies) == 0 {
		return contract.PersonaReply{}, errors.New("no scripted reply")
	}
	return o.replies[0], nil
}

func (o *scriptedOrchestrator) AnalyzeConsensus(context.Context) (string, error) {
	return "partial agreement", o.consensusErr
}

func (o *scriptedOrchestrator) Summarize(context.Context) (contract.Summary, error) {
	return contract.Summary{Text: "wrap-up", Metrics: map[string]any{"turns": 3}}, nil
}

func (o *scriptedOrchestrator) Close(context.Context) (string, error) {
	if o.closeErr != nil {
		return "", o.closeErr
	}
	o.closed = true
	return o.report, nil
}

type scriptedFactory struct {
	orch *scriptedOrchestrator
}

func (f *scriptedFactory) New() contract.DiscussionOrchestrator { return f.orch }

func newTestCoordinator(t *testing.T, orch *scriptedOrchestrator) (*Coordinator, *Registry) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry()
	persist := make(chan event.Event, 256)
	monitor := observability.NewMonitor()
	fanout := NewFanout(log, registry, persist, time.Second, monitor)
	moderator, err := moderation.NewModerator(nil, '*')
	require.NoError(t, err)
	return NewCoordinator(log, registry, &scriptedFactory{orch: orch}, fanout, moderator, monitor, time.Second), registry
}

func joinPayload(session, topic, userID string) event.JoinDiscussion {
	return event.JoinDiscussion{Session: session, Topic: topic, UserID: userID}
}

func TestJoinCreatesSessionAndSendsSnapshotToJoinerOnly(t *testing.T) {
	// Given a coordinator with no sessions
	orch := &scriptedOrchestrator{opening: "Welcome, let's talk remote work."}
	coordinator, _ := newTestCoordinator(t, orch)
	sink := &collectSink{}

	// When a first connection joins
	coordinator.Join(context.Background(), "conn-a", sink, joinPayload("s1", "Remote work", "alice"))

	// Then the session exists and the joiner received the snapshot
	require.Equal(t, 1, coordinator.SessionCount())
	snapshots := sink.named(event.NameDiscussionInitialized)
	require.Len(t, snapshots, 1)
	snapshot := snapshots[0].(event.DiscussionInitialized)
	require.Equal(t, "Remote work", snapshot.Topic)
	require.Equal(t, "Welcome, let's talk remote work.", snapshot.OpeningStatement)
	require.Len(t, snapshot.Participants, 1)
	require.Equal(t, "alice", snapshot.Participants[0].UserID)

	// And the room was notified of the join
	joins := sink.named(event.NameUserJoined)
	require.Len(t, joins, 1)
	require.Equal(t, 1, joins[0].(event.UserJoined).ParticipantCount)
}

func TestSecondJoinAttachesAndKeepsOriginalTopic(t *testing.T) {
	// Given a session created by the first joiner
	orch := &scriptedOrchestrator{opening: "opening"}
	coordinator, _ := newTestCoordinator(t, orch)
	sinkA := &collectSink{}
	sinkB := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sinkA, joinPayload("s1", "Remote work", "alice"))

	// When a second connection joins the same id with a different topic
	coordinator.Join(context.Background(), "conn-b", sinkB, joinPayload("s1", "Office snacks", "bob"))

	// Then there is still one session and B sees the original topic
	require.Equal(t, 1, coordinator.SessionCount())
	snapshots := sinkB.named(event.NameDiscussionInitialized)
	require.Len(t, snapshots, 1)
	require.Equal(t, "Remote work", snapshots[0].(event.DiscussionInitialized).Topic)

	// And both connections observed the second join with the updated count
	for _, sink := range []*collectSink{sinkA, sinkB} {
		joins := sink.named(event.NameUserJoined)
		last := joins[len(joins)-1].(event.UserJoined)
		require.Equal(t, "bob", last.UserID)
		require.Equal(t, 2, last.ParticipantCount)
	}
}

func TestRejoinSameConnectionIsIdempotent(t *testing.T) {
	// Given a joined connection
	orch := &scriptedOrchestrator{opening: "opening"}
	coordinator, _ := newTestCoordinator(t, orch)
	sink := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sink, joinPayload("s1", "Remote work", "alice"))

	// When the same connection joins again
	coordinator.Join(context.Background(), "conn-a", sink, joinPayload("s1", "Remote work", "alice"))

	// Then the snapshot is re-sent but no duplicate participant or join event exists
	require.Len(t, sink.named(event.NameDiscussionInitialized), 2)
	require.Len(t, sink.named(event.NameUserJoined), 1)
	info, ok := coordinator.RoomInfo("s1")
	require.True(t, ok)
	require.Equal(t, []string{"alice"}, info.Participants)
}

func TestJoinFailsWhenOrchestratorInitializationFails(t *testing.T) {
	// Given an orchestrator that cannot initialize
	orch := &scriptedOrchestrator{initErr: errors.New("model unavailable")}
	coordinator, _ := newTestCoordinator(t, orch)
	sink := &collectSink{}

	// When the connection tries to join
	coordinator.Join(context.Background(), "conn-a", sink, joinPayload("s1", "Remote work", "alice"))

	// Then no session was created and the joiner alone got an error
	require.Equal(t, 0, coordinator.SessionCount())
	failures := sink.named(event.NameError)
	require.Len(t, failures, 1)
	require.Contains(t, failures[0].(event.Error).Err, "model unavailable")
}

func TestFailedJoinLeavesNothingRegistered(t *testing.T) {
	// Given an orchestrator that cannot initialize
	orch := &scriptedOrchestrator{initErr: errors.New("model unavailable")}
	coordinator, registry := newTestCoordinator(t, orch)
	sink := &collectSink{}

	// When the connection tries to join
	coordinator.Join(context.Background(), "conn-a", sink, joinPayload("s1", "Remote work", "alice"))

	// Then the error reached the joiner even though it was never subscribed
	require.Len(t, sink.named(event.NameError), 1)
	require.Zero(t, registry.ConnectionCount())
	require.Empty(t, registry.SinksForRoom(domain.SessionID("s1")))
}

func TestPostMessageBroadcastsTurnRepliesAndProgress(t *testing.T) {
	// Given a session with two members
	now := time.Now().UTC()
	orch := &scriptedOrchestrator{
		opening: "opening",
		replies: []contract.PersonaReply{
			{Persona: "optimist", DisplayName: "Maya", Message: "Great idea!", At: now},
			{Persona: "skeptic", DisplayName: "Viktor", Message: "Where is the data?", At: now},
		},
		progress: 0.4,
	}
	coordinator, _ := newTestCoordinator(t, orch)
	sinkA := &collectSink{}
	sinkB := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sinkA, joinPayload("s1", "Remote work", "alice"))
	coordinator.Join(context.Background(), "conn-b", sinkB, joinPayload("s1", "Remote work", "bob"))

	// When A posts a message
	coordinator.PostMessage(context.Background(), "conn-a", event.UserMessage{Session: "s1", Message: "I think we should go fully remote"})

	// Then both members see the message, each reply and the progress update
	for _, sink := range []*collectSink{sinkA, sinkB} {
		messages := sink.named(event.NameNewMessage)
		require.Len(t, messages, 1)
		require.Equal(t, "I think we should go fully remote", messages[0].(event.NewMessage).Message)

		responses := sink.named(event.NameAgentResponse)
		require.Len(t, responses, 2)
		require.Equal(t, "Maya", responses[0].(event.AgentResponse).AgentName)
		require.Equal(t, "Viktor", responses[1].(event.AgentResponse).AgentName)

		progress := sink.named(event.NameDiscussionProgress)
		require.Len(t, progress, 1)
		require.InDelta(t, 0.4, progress[0].(event.DiscussionProgress).Progress, 1e-9)
	}

	// And the history holds opening, human turn and both replies
	info, ok := coordinator.RoomInfo("s1")
	require.True(t, ok)
	require.Equal(t, 4, info.TurnCount)
}

func TestPostMessageToUnknownSessionFailsRequesterOnly(t *testing.T) {
	// Given a member of another session
	orch := &scriptedOrchestrator{opening: "opening"}
	coordinator, _ := newTestCoordinator(t, orch)
	sinkA := &collectSink{}
	sinkB := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sinkA, joinPayload("s1", "Remote work", "alice"))
	coordinator.Join(context.Background(), "conn-b", sinkB, joinPayload("s1", "Remote work", "bob"))

	// When A posts to a session that does not exist
	coordinator.PostMessage(context.Background(), "conn-a", event.UserMessage{Session: "nope", Message: "hello"})

	// Then only A receives the error
	require.Len(t, sinkA.named(event.NameError), 1)
	require.Empty(t, sinkB.named(event.NameError))
}

func TestFailedTurnLeavesHistoryUntouched(t *testing.T) {
	// Given an orchestrator that fails mid-discussion
	orch := &scriptedOrchestrator{opening: "opening", turnErr: errors.New("timeout")}
	coordinator, _ := newTestCoordinator(t, orch)
	sinkA := &collectSink{}
	sinkB := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sinkA, joinPayload("s1", "Remote work", "alice"))
	coordinator.Join(context.Background(), "conn-b", sinkB, joinPayload("s1", "Remote work", "bob"))

	// When A posts a message
	coordinator.PostMessage(context.Background(), "conn-a", event.UserMessage{Session: "s1", Message: "hello"})

	// Then only A got the error and no turn was recorded
	require.Len(t, sinkA.named(event.NameError), 1)
	require.Empty(t, sinkB.named(event.NameError))
	require.Empty(t, sinkA.named(event.NameNewMessage))
	info, _ := coordinator.RoomInfo("s1")
	require.Equal(t, 1, info.TurnCount)
}

func TestAskPersonaBroadcastsQuestionThenAnswer(t *testing.T) {
	// Given a running session
	now := time.Now().UTC()
	orch := &scriptedOrchestrator{
		opening: "opening",
		replies: []contract.PersonaReply{{Persona: "skeptic", DisplayName: "Viktor", Message: "Prove it.", At: now}},
	}
	coordinator, _ := newTestCoordinator(t, orch)
	sink := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sink, joinPayload("s1", "Remote work", "alice"))

	// When a persona is asked directly
	coordinator.AskPersona(context.Background(), "conn-a", event.AskAgent{Session: "s1", AgentType: "skeptic", Question: "What could go wrong?"})

	// Then the question precedes the answer and both are in the history
	questions := sink.named(event.NameDirectQuestion)
	require.Len(t, questions, 1)
	require.Equal(t, "What could go wrong?", questions[0].(event.DirectQuestion).Question)

	answers := sink.named(event.NameDirectAnswer)
	require.Len(t, answers, 1)
	require.Equal(t, "Viktor", answers[0].(event.DirectAnswer).AgentName)

	info, _ := coordinator.RoomInfo("s1")
	require.Equal(t, 3, info.TurnCount)
}

func TestConsensusFailureIsIsolatedToRequester(t *testing.T) {
	// Given a session where consensus analysis fails
	orch := &scriptedOrchestrator{opening: "opening", consensusErr: errors.New("model overloaded")}
	coordinator, _ := newTestCoordinator(t, orch)
	sinkA := &collectSink{}
	sinkB := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sinkA, joinPayload("s1", "Remote work", "alice"))
	coordinator.Join(context.Background(), "conn-b", sinkB, joinPayload("s1", "Remote work", "bob"))

	// When A requests consensus
	coordinator.RequestConsensus(context.Background(), "conn-a", event.SessionRequest{Session: "s1"})

	// Then A alone sees the failure and the session is unchanged
	require.Len(t, sinkA.named(event.NameError), 1)
	require.Empty(t, sinkB.named(event.NameError))
	info, ok := coordinator.RoomInfo("s1")
	require.True(t, ok)
	require.Equal(t, 1, info.TurnCount)
}

func TestRequestSummaryBroadcastsSummaryWithMetrics(t *testing.T) {
	// Given a running session
	orch := &scriptedOrchestrator{opening: "opening"}
	coordinator, _ := newTestCoordinator(t, orch)
	sink := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sink, joinPayload("s1", "Remote work", "alice"))

	// When a summary is requested
	coordinator.RequestSummary(context.Background(), "conn-a", event.SessionRequest{Session: "s1"})

	// Then the room receives the summary and its metrics
	summaries := sink.named(event.NameDiscussionSummary)
	require.Len(t, summaries, 1)
	summary := summaries[0].(event.DiscussionSummary)
	require.Equal(t, "wrap-up", summary.Summary)
	require.Equal(t, 3, summary.Metrics["turns"])
}

func TestEndDiscussionBroadcastsReportAndRemovesSession(t *testing.T) {
	// Given a session with two members
	orch := &scriptedOrchestrator{opening: "opening", report: "We agreed on hybrid."}
	coordinator, registry := newTestCoordinator(t, orch)
	sinkA := &collectSink{}
	sinkB := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sinkA, joinPayload("s1", "Remote work", "alice"))
	coordinator.Join(context.Background(), "conn-b", sinkB, joinPayload("s1", "Remote work", "bob"))

	// When A ends the discussion
	coordinator.EndDiscussion(context.Background(), "conn-a", event.SessionRequest{Session: "s1"})

	// Then everyone, A included, received the final report
	for _, sink := range []*collectSink{sinkA, sinkB} {
		ended := sink.named(event.NameDiscussionEnded)
		require.Len(t, ended, 1)
		require.Equal(t, "We agreed on hybrid.", ended[0].(event.DiscussionEnded).FinalReport)
	}

	// And the session is gone and the invoker detached from the room
	require.True(t, orch.closed)
	require.Equal(t, 0, coordinator.SessionCount())
	_, ok := coordinator.RoomInfo("s1")
	require.False(t, ok)
	require.Empty(t, registry.SinksForRoom(domain.SessionID("s1")))
}

func TestEndedSessionIDReusedByUnrelatedDiscussion(t *testing.T) {
	// Given a session ended by one of its two members
	orch := &scriptedOrchestrator{opening: "opening", report: "report"}
	coordinator, registry := newTestCoordinator(t, orch)
	sinkA := &collectSink{}
	sinkB := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sinkA, joinPayload("s1", "Remote work", "alice"))
	coordinator.Join(context.Background(), "conn-b", sinkB, joinPayload("s1", "Remote work", "bob"))
	coordinator.EndDiscussion(context.Background(), "conn-a", event.SessionRequest{Session: "s1"})

	// Then every member is detached, not only the invoker
	require.Zero(t, registry.ConnectionCount())

	// When a new connection reuses the id and posts
	sinkC := &collectSink{}
	coordinator.Join(context.Background(), "conn-c", sinkC, joinPayload("s1", "Office snacks", "carol"))
	coordinator.PostMessage(context.Background(), "conn-c", event.UserMessage{Session: "s1", Message: "hello new room"})

	// Then the former members observe nothing of the new session
	require.Len(t, sinkC.named(event.NameNewMessage), 1)
	require.Empty(t, sinkA.named(event.NameNewMessage))
	require.Empty(t, sinkB.named(event.NameNewMessage))
}

func TestEndDiscussionFailureKeepsSessionAlive(t *testing.T) {
	// Given a session whose orchestrator cannot close
	orch := &scriptedOrchestrator{opening: "opening", closeErr: errors.New("report generation failed")}
	coordinator, _ := newTestCoordinator(t, orch)
	sink := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sink, joinPayload("s1", "Remote work", "alice"))

	// When ending fails
	coordinator.EndDiscussion(context.Background(), "conn-a", event.SessionRequest{Session: "s1"})

	// Then the session survives and the invoker got the error
	require.Equal(t, 1, coordinator.SessionCount())
	require.Len(t, sink.named(event.NameError), 1)
	require.Empty(t, sink.named(event.NameDiscussionEnded))
}

func TestDisconnectNotifiesRoomAndDeletesEmptySessions(t *testing.T) {
	// Given two members of a session
	orch := &scriptedOrchestrator{opening: "opening"}
	coordinator, _ := newTestCoordinator(t, orch)
	sinkA := &collectSink{}
	sinkB := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sinkA, joinPayload("s1", "Remote work", "alice"))
	coordinator.Join(context.Background(), "conn-b", sinkB, joinPayload("s1", "Remote work", "bob"))

	// When A disconnects
	coordinator.Disconnect(context.Background(), "conn-a")

	// Then B sees the departure with the updated count
	left := sinkB.named(event.NameUserLeft)
	require.Len(t, left, 1)
	require.Equal(t, 1, left[0].(event.UserLeft).ParticipantCount)
	require.Equal(t, 1, coordinator.SessionCount())

	// When the last member disconnects
	coordinator.Disconnect(context.Background(), "conn-b")

	// Then the empty session is deleted without a broadcast
	require.Equal(t, 0, coordinator.SessionCount())
	_, ok := coordinator.RoomInfo("s1")
	require.False(t, ok)
}

func TestTypingReachesRoomWithoutSessionLookup(t *testing.T) {
	// Given a member of a session
	orch := &scriptedOrchestrator{opening: "opening"}
	coordinator, _ := newTestCoordinator(t, orch)
	sink := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sink, joinPayload("s1", "Remote work", "alice"))

	// When typing notices arrive, including for an unknown session
	coordinator.Typing(context.Background(), event.TypingNotice{Session: "s1", UserID: "alice"})
	coordinator.Typing(context.Background(), event.TypingNotice{Session: "ghost", UserID: "nobody"})
	coordinator.StopTyping(context.Background(), event.TypingNotice{Session: "s1", UserID: "alice"})

	// Then only the live room observed them and no error was raised
	require.Len(t, sink.named(event.NameUserTyping), 1)
	require.Len(t, sink.named(event.NameUserStoppedTyping), 1)
	require.Empty(t, sink.named(event.NameError))
}

func TestAgentListIsServedToRequesterOnly(t *testing.T) {
	// Given two connected members
	orch := &scriptedOrchestrator{opening: "opening"}
	coordinator, _ := newTestCoordinator(t, orch)
	sinkA := &collectSink{}
	sinkB := &collectSink{}
	coordinator.Join(context.Background(), "conn-a", sinkA, joinPayload("s1", "Remote work", "alice"))
	coordinator.Join(context.Background(), "conn-b", sinkB, joinPayload("s1", "Remote work", "bob"))

	// When A requests the agent catalog
	coordinator.AgentList(context.Background(), "conn-a")

	// Then only A receives it, with the full catalog
	lists := sinkA.named(event.NameAgentList)
	require.Len(t, lists, 1)
	require.Len(t, lists[0].(event.AgentList).Agents, 5)
	require.Empty(t, sinkB.named(event.NameAgentList))
}
