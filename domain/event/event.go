// Package event defines the tagged events flowing between the coordinator
// and the connections of a discussion room. One constructor per event name;
// payload shapes are the wire contract of the discussions channel.
package event

import (
	"time"

	"discussion-lab/domain"
	"discussion-lab/persona"
)

// Outbound event names (coordinator -> clients).
const (
	NameDiscussionInitialized = "discussion_initialized"
	NameUserJoined            = "user_joined"
	NameUserLeft              = "user_left"
	NameNewMessage            = "new_message"
	NameAgentResponse         = "agent_response"
	NameDiscussionProgress    = "discussion_progress"
	NameDirectQuestion        = "direct_question"
	NameDirectAnswer          = "direct_answer"
	NameConsensusAnalysis     = "consensus_analysis"
	NameDiscussionSummary     = "discussion_summary"
	NameDiscussionEnded       = "discussion_ended"
	NameAgentList             = "agent_list"
	NameUserTyping            = "user_typing"
	NameUserStoppedTyping     = "user_stopped_typing"
	NameError                 = "error"
)

// Event is anything the fan-out can deliver to a room.
type Event interface {
	SessionID() domain.SessionID
	Name() string
}

// Targeted events reach a single connection instead of the whole room.
type Targeted interface {
	Event
	TargetConnection() string
}

// ParticipantInfo is the participant shape exposed on the wire.
type ParticipantInfo struct {
	UserID   string    `json:"userId"`
	JoinedAt time.Time `json:"joinedAt"`
}

// DiscussionInitialized is the full session snapshot sent to the joiner only.
type DiscussionInitialized struct {
	Session          string            `json:"sessionId"`
	Topic            string            `json:"topic"`
	Participants     []ParticipantInfo `json:"participants"`
	OpeningStatement string            `json:"openingStatement"`
	Target           string            `json:"-"`
}

func (e DiscussionInitialized) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e DiscussionInitialized) Name() string                { return NameDiscussionInitialized }
func (e DiscussionInitialized) TargetConnection() string    { return e.Target }

type UserJoined struct {
	Session          string `json:"-"`
	UserID           string `json:"userId"`
	ParticipantCount int    `json:"participantCount"`
}

func (e UserJoined) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e UserJoined) Name() string                { return NameUserJoined }

type UserLeft struct {
	Session          string `json:"-"`
	ParticipantCount int    `json:"participantCount"`
}

func (e UserLeft) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e UserLeft) Name() string                { return NameUserLeft }

// NewMessage carries the human turn back to the whole room, sender included.
type NewMessage struct {
	Session   string    `json:"-"`
	Agent     string    `json:"agent"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Language  string    `json:"-"`
}

func (e NewMessage) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e NewMessage) Name() string                { return NameNewMessage }

type AgentResponse struct {
	Session   string    `json:"-"`
	Agent     string    `json:"agent"`
	AgentName string    `json:"name"`
	Role      string    `json:"role"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (e AgentResponse) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e AgentResponse) Name() string                { return NameAgentResponse }

type DiscussionProgress struct {
	Session  string  `json:"-"`
	Progress float64 `json:"progress"`
}

func (e DiscussionProgress) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e DiscussionProgress) Name() string                { return NameDiscussionProgress }

type DirectQuestion struct {
	Session  string `json:"-"`
	Agent    string `json:"agent"`
	Question string `json:"question"`
}

func (e DirectQuestion) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e DirectQuestion) Name() string                { return NameDirectQuestion }

type DirectAnswer struct {
	Session   string    `json:"-"`
	Agent     string    `json:"agent"`
	AgentName string    `json:"name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

func (e DirectAnswer) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e DirectAnswer) Name() string                { return NameDirectAnswer }

type ConsensusAnalysis struct {
	Session  string `json:"-"`
	Analysis string `json:"analysis"`
}

func (e ConsensusAnalysis) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e ConsensusAnalysis) Name() string                { return NameConsensusAnalysis }

type DiscussionSummary struct {
	Session string         `json:"-"`
	Summary string         `json:"summary"`
	Metrics map[string]any `json:"metrics"`
}

func (e DiscussionSummary) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e DiscussionSummary) Name() string                { return NameDiscussionSummary }

// DiscussionEnded closes the room. Topic rides along for archival sinks
// but is not part of the wire payload.
type DiscussionEnded struct {
	Session     string `json:"-"`
	FinalReport string `json:"finalReport"`
	Topic       string `json:"-"`
}

func (e DiscussionEnded) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e DiscussionEnded) Name() string                { return NameDiscussionEnded }

type AgentList struct {
	Agents []persona.Descriptor `json:"agents"`
	Target string               `json:"-"`
}

func (e AgentList) SessionID() domain.SessionID { return "" }
func (e AgentList) Name() string                { return NameAgentList }
func (e AgentList) TargetConnection() string    { return e.Target }

type UserTyping struct {
	Session   string    `json:"-"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e UserTyping) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e UserTyping) Name() string                { return NameUserTyping }

type UserStoppedTyping struct {
	Session   string    `json:"-"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e UserStoppedTyping) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e UserStoppedTyping) Name() string                { return NameUserStoppedTyping }

// Error is reported to the invoking connection only, never broadcast.
type Error struct {
	Session string `json:"-"`
	Message string `json:"message"`
	Err     string `json:"error"`
	Target  string `json:"-"`
}

func (e Error) SessionID() domain.SessionID { return domain.SessionID(e.Session) }
func (e Error) Name() string                { return NameError }
func (e Error) TargetConnection() string    { return e.Target }
