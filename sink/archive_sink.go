// Package sink holds the permanent event consumers fed by the sink worker.
// Unlike connection sinks, these survive session teardown.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"discussion-lab/domain/event"
	"discussion-lab/repositories"
)

// ArchiveSink persists the conversational events to the transcript archive
// and indexes ended discussions for search. Non-conversational events
// (typing, progress, errors) are ignored.
type ArchiveSink struct {
	transcripts repositories.ITranscriptRepository
	search      repositories.ISearchRepository
	log         *slog.Logger
}

func NewArchiveSink(transcripts repositories.ITranscriptRepository, search repositories.ISearchRepository, log *slog.Logger) ArchiveSink {
	return ArchiveSink{transcripts: transcripts, search: search, log: log}
}

func (s ArchiveSink) Consume(ctx context.Context, e event.Event) error {
	switch evt := e.(type) {
	case event.NewMessage:
		return s.transcripts.StoreTurn(repositories.DiskTurn{
			ID:       uuid.New(),
			Session:  evt.SessionID(),
			Speaker:  evt.Agent,
			Message:  evt.Message,
			Language: evt.Language,
			At:       evt.Timestamp,
		})
	case event.AgentResponse:
		return s.transcripts.StoreTurn(repositories.DiskTurn{
			ID:      uuid.New(),
			Session: evt.SessionID(),
			Speaker: evt.Agent,
			Name:    evt.AgentName,
			Message: evt.Message,
			At:      evt.Timestamp,
		})
	case event.DirectAnswer:
		return s.transcripts.StoreTurn(repositories.DiskTurn{
			ID:      uuid.New(),
			Session: evt.SessionID(),
			Speaker: evt.Agent,
			Name:    evt.AgentName,
			Message: evt.Message,
			At:      evt.Timestamp,
		})
	case event.DiscussionEnded:
		return s.archiveEnded(ctx, evt)
	default:
		s.log.Debug(fmt.Sprintf("Not archived event : %s", e.Name()))
		return nil
	}
}

func (s ArchiveSink) archiveEnded(ctx context.Context, evt event.DiscussionEnded) error {
	report := repositories.DiskReport{
		Session: evt.SessionID(),
		Topic:   evt.Topic,
		Report:  evt.FinalReport,
		At:      time.Now().UTC(),
	}
	if err := s.transcripts.StoreReport(report); err != nil {
		return err
	}
	return s.search.IndexDiscussion(ctx, repositories.DiscussionDocument{
		Session: evt.SessionID(),
		Topic:   evt.Topic,
		Report:  evt.FinalReport,
		EndedAt: report.At,
	})
}
