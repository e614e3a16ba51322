//go:generate go run go.uber.org/mock/mockgen -source=discussion_service.go -destination=../mocks/mock_discussion_service.go -package=mocks
package services

import (
	"context"
	"log/slog"

	"discussion-lab/contract"
	"discussion-lab/domain"
	"discussion-lab/domain/event"
	"discussion-lab/runtime"
)

// IDiscussionService is the surface the transport layer talks to. It hides
// the coordinator behind an interface so handlers can be tested with mocks.
type IDiscussionService interface {
	Join(ctx context.Context, connectionID string, sink contract.EventSink, p event.JoinDiscussion)
	PostMessage(ctx context.Context, connectionID string, p event.UserMessage)
	AskPersona(ctx context.Context, connectionID string, p event.AskAgent)
	RequestConsensus(ctx context.Context, connectionID string, p event.SessionRequest)
	RequestSummary(ctx context.Context, connectionID string, p event.SessionRequest)
	EndDiscussion(ctx context.Context, connectionID string, p event.SessionRequest)
	Typing(ctx context.Context, p event.TypingNotice)
	StopTyping(ctx context.Context, p event.TypingNotice)
	AgentList(ctx context.Context, connectionID string)
	Disconnect(ctx context.Context, connectionID string)
	SessionCount() int
	SessionIDs() []domain.SessionID
	RoomInfo(sessionID domain.SessionID) (runtime.RoomInfo, bool)
}

type DiscussionService struct {
	log         *slog.Logger
	coordinator *runtime.Coordinator
}

func NewDiscussionService(log *slog.Logger, coordinator *runtime.Coordinator) *DiscussionService {
	return &DiscussionService{log: log, coordinator: coordinator}
}

func (s *DiscussionService) Join(ctx context.Context, connectionID string, sink contract.EventSink, p event.JoinDiscussion) {
	s.coordinator.Join(ctx, connectionID, sink, p)
}

func (s *DiscussionService) PostMessage(ctx context.Context, connectionID string, p event.UserMessage) {
	s.coordinator.PostMessage(ctx, connectionID, p)
}

func (s *DiscussionService) AskPersona(ctx context.Context, connectionID string, p event.AskAgent) {
	s.coordinator.AskPersona(ctx, connectionID, p)
}

func (s *DiscussionService) RequestConsensus(ctx context.Context, connectionID string, p event.SessionRequest) {
	s.coordinator.RequestConsensus(ctx, connectionID, p)
}

func (s *DiscussionService) RequestSummary(ctx context.Context, connectionID string, p event.SessionRequest) {
	s.coordinator.RequestSummary(ctx, connectionID, p)
}

func (s *DiscussionService) EndDiscussion(ctx context.Context, connectionID string, p event.SessionRequest) {
	s.coordinator.EndDiscussion(ctx, connectionID, p)
}

func (s *DiscussionService) Typing(ctx context.Context, p event.TypingNotice) {
	s.coordinator.Typing(ctx, p)
}

func (s *DiscussionService) StopTyping(ctx context.Context, p event.TypingNotice) {
	s.coordinator.StopTyping(ctx, p)
}

func (s *DiscussionService) AgentList(ctx context.Context, connectionID string) {
	s.coordinator.AgentList(ctx, connectionID)
}

func (s *DiscussionService) Disconnect(ctx context.Context, connectionID string) {
	s.coordinator.Disconnect(ctx, connectionID)
}

func (s *DiscussionService) SessionCount() int { return s.coordinator.SessionCount() }

func (s *DiscussionService) SessionIDs() []domain.SessionID { return s.coordinator.SessionIDs() }

func (s *DiscussionService) RoomInfo(sessionID domain.SessionID) (runtime.RoomInfo, bool) {
	return s.coordinator.RoomInfo(sessionID)
}
