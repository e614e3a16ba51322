//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"time"

	"github.com/blugelabs/bluge"

	"discussion-lab/domain"
)

type ISearchRepository interface {
	IndexDiscussion(ctx context.Context, doc DiscussionDocument) error
	SearchByTopic(ctx context.Context, query string, limit int) ([]DiscussionDocument, error)
}

// SearchRepository indexes ended discussions in bluge so operators can
// find past sessions by topic or report content.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) SearchRepository {
	return SearchRepository{writer: writer, log: log}
}

type DiscussionDocument struct {
	Session domain.SessionID
	Topic   string
	Report  string
	EndedAt time.Time
}

func (s SearchRepository) IndexDiscussion(_ context.Context, doc DiscussionDocument) error {
	blugeDoc := bluge.NewDocument(string(doc.Session)).
		AddField(bluge.NewTextField("topic", doc.Topic).StoreValue()).
		AddField(bluge.NewTextField("report", doc.Report).StoreValue()).
		AddField(bluge.NewDateTimeField("ended_at", doc.EndedAt).StoreValue())
	return s.writer.Update(blugeDoc.ID(), blugeDoc)
}

// SearchByTopic matches the query against both the topic and the final
// report, best score first.
func (s SearchRepository) SearchByTopic(ctx context.Context, query string, limit int) ([]DiscussionDocument, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("failed to close search reader", "error", err)
		}
	}()

	topicQuery := bluge.NewMatchQuery(query).SetField("topic")
	reportQuery := bluge.NewMatchQuery(query).SetField("report")
	request := bluge.NewTopNSearch(limit, bluge.NewBooleanQuery().
		AddShould(topicQuery).
		AddShould(reportQuery)).
		WithStandardAggregations()

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var docs []DiscussionDocument
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var doc DiscussionDocument
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "_id":
				doc.Session = domain.SessionID(value)
			case "topic":
				doc.Topic = string(value)
			case "report":
				doc.Report = string(value)
			case "ended_at":
				if at, err := bluge.DecodeDateTime(value); err == nil {
					doc.EndedAt = at
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
