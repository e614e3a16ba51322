package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func opening() Turn {
	return Turn{
		Speaker: SpeakerModerator,
		Message: "Let's discuss remote work...",
		At:      time.Now().UTC(),
	}
}

func TestSession_New_SeedsHistoryWithOpeningStatement(t *testing.T) {
	req := require.New(t)
	session := NewSession("s1", "Remote work", opening())

	req.Equal(SessionID("s1"), session.ID)
	req.Equal("Remote work", session.Topic)
	req.Equal(1, session.TurnCount())
	req.Equal("Let's discuss remote work...", session.OpeningStatement())
	req.Zero(session.ParticipantCount())
}

func TestSession_AddParticipant_KeepsJoinOrder(t *testing.T) {
	req := require.New(t)
	session := NewSession("s1", "Remote work", opening())

	req.True(session.AddParticipant("conn-a", "alice"))
	req.True(session.AddParticipant("conn-b", "bob"))

	participants := session.Participants()
	req.Len(participants, 2)
	req.Equal("alice", participants[0].UserID)
	req.Equal("bob", participants[1].UserID)
}

func TestSession_AddParticipant_RejectsDuplicateConnection(t *testing.T) {
	req := require.New(t)
	session := NewSession("s1", "Remote work", opening())

	// Given a connection already joined
	req.True(session.AddParticipant("conn-a", "alice"))

	// When the same connection joins again
	req.False(session.AddParticipant("conn-a", "alice"))

	// Then participants never contain that connection twice
	req.Equal(1, session.ParticipantCount())
}

func TestSession_RemoveParticipant(t *testing.T) {
	req := require.New(t)
	session := NewSession("s1", "Remote work", opening())
	session.AddParticipant("conn-a", "alice")
	session.AddParticipant("conn-b", "bob")

	req.True(session.RemoveParticipant("conn-a"))
	req.False(session.RemoveParticipant("conn-a"))

	req.Equal(1, session.ParticipantCount())
	req.False(session.HasParticipant("conn-a"))
	req.True(session.HasParticipant("conn-b"))
}

func TestSession_History_IsAppendOnlyAndCopied(t *testing.T) {
	req := require.New(t)
	session := NewSession("s1", "Remote work", opening())

	session.AppendTurn(Turn{Speaker: SpeakerUser, Message: "I think async wins", At: time.Now().UTC()})
	session.AppendTurn(Turn{Speaker: "optimist", DisplayName: "Maya", Message: "Agreed!", At: time.Now().UTC()})

	history := session.History()
	req.Len(history, 3)

	// Mutating the returned slice must not touch session state
	history[0].Message = "tampered"
	req.Equal("Let's discuss remote work...", session.OpeningStatement())
}
