// Package domain contains core concepts of the group discussion system.
// This file defines the Session entity and its invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"
)

type SessionID string

const (
	SpeakerUser      = "user"
	SpeakerModerator = "moderator"
)

// Participant is one connection joined to a session's room.
type Participant struct {
	ConnectionID string
	UserID       string
	JoinedAt     time.Time
}

// Turn is one immutable entry of a session's conversation history.
type Turn struct {
	Speaker     string
	DisplayName string
	Message     string
	Language    string
	At          time.Time
}

// Session is one active group discussion.
// History is append-only and seeded with the opening statement;
// participants keep join order and never contain a connection twice.
type Session struct {
	ID           SessionID
	Topic        string
	CreatedAt    time.Time
	participants []Participant
	history      []Turn
}

func NewSession(id SessionID, topic string, opening Turn) *Session {
	return &Session{
		ID:        id,
		Topic:     topic,
		CreatedAt: time.Now().UTC(),
		history:   []Turn{opening},
	}
}

// AddParticipant appends a participant, preserving join order.
// Returns false if the connection is already part of the session.
func (s *Session) AddParticipant(connectionID, userID string) bool {
	if s.HasParticipant(connectionID) {
		return false
	}
	s.participants = append(s.participants, Participant{
		ConnectionID: connectionID,
		UserID:       userID,
		JoinedAt:     time.Now().UTC(),
	})
	return true
}

// RemoveParticipant returns false when the connection was not a member.
func (s *Session) RemoveParticipant(connectionID string) bool {
	for i, p := range s.participants {
		if p.ConnectionID == connectionID {
			s.participants = append(s.participants[:i], s.participants[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Session) HasParticipant(connectionID string) bool {
	for _, p := range s.participants {
		if p.ConnectionID == connectionID {
			return true
		}
	}
	return false
}

func (s *Session) ParticipantCount() int {
	return len(s.participants)
}

// Participants returns a copy; callers never mutate session state directly.
func (s *Session) Participants() []Participant {
	out := make([]Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

func (s *Session) AppendTurn(turn Turn) {
	s.history = append(s.history, turn)
}

// History returns a copy of the conversation so far.
// The first entry is always the opening statement.
func (s *Session) History() []Turn {
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// OpeningStatement is the orchestrator's seed turn.
func (s *Session) OpeningStatement() string {
	return s.history[0].Message
}

func (s *Session) TurnCount() int {
	return len(s.history)
}
