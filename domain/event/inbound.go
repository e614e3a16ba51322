package event

import "encoding/json"

// Inbound event names (clients -> coordinator).
const (
	NameJoinDiscussion   = "join_discussion"
	NameUserMessage      = "user_message"
	NameAskAgent         = "ask_agent"
	NameRequestConsensus = "request_consensus"
	NameRequestSummary   = "request_summary"
	NameEndDiscussion    = "end_discussion"
	NameRequestAgentList = "request_agent_list"
	NameTyping           = "typing"
	NameStopTyping       = "stop_typing"
)

// Envelope is the raw frame read off a connection before type dispatch.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type JoinDiscussion struct {
	Session        string   `json:"sessionId" validate:"required"`
	Topic          string   `json:"topic" validate:"required"`
	SelectedAgents []string `json:"selectedAgents"`
	Context        string   `json:"context"`
	UserID         string   `json:"userId" validate:"required"`
}

type UserMessage struct {
	Session    string `json:"sessionId" validate:"required"`
	Message    string `json:"message" validate:"required"`
	FocusAgent string `json:"focusAgent"`
}

type AskAgent struct {
	Session   string `json:"sessionId" validate:"required"`
	AgentType string `json:"agentType" validate:"required"`
	Question  string `json:"question" validate:"required"`
}

type SessionRequest struct {
	Session string `json:"sessionId" validate:"required"`
}

type TypingNotice struct {
	Session string `json:"sessionId" validate:"required"`
	UserID  string `json:"userId" validate:"required"`
}
