package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/stretchr/testify/require"
)

func openTestWriter(t *testing.T) *bluge.Writer {
	t.Helper()
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close() })
	return writer
}

func TestSearchRepository_FindsDiscussionByTopic(t *testing.T) {
	req := require.New(t)
	repo := NewSearchRepository(openTestWriter(t), slog.Default())
	ctx := context.Background()
	now := time.Now().UTC()

	req.NoError(repo.IndexDiscussion(ctx, DiscussionDocument{
		Session: "s1", Topic: "Remote work policies", Report: "hybrid won", EndedAt: now,
	}))
	req.NoError(repo.IndexDiscussion(ctx, DiscussionDocument{
		Session: "s2", Topic: "Office snacks", Report: "more fruit", EndedAt: now,
	}))

	docs, err := repo.SearchByTopic(ctx, "remote", 10)
	req.NoError(err)
	req.Len(docs, 1)
	req.EqualValues("s1", docs[0].Session)
	req.Equal("Remote work policies", docs[0].Topic)
	req.Equal("hybrid won", docs[0].Report)
}

func TestSearchRepository_MatchesReportContentToo(t *testing.T) {
	req := require.New(t)
	repo := NewSearchRepository(openTestWriter(t), slog.Default())
	ctx := context.Background()

	req.NoError(repo.IndexDiscussion(ctx, DiscussionDocument{
		Session: "s1", Topic: "Hiring plan", Report: "we should pause recruiting", EndedAt: time.Now().UTC(),
	}))

	docs, err := repo.SearchByTopic(ctx, "recruiting", 10)
	req.NoError(err)
	req.Len(docs, 1)
	req.EqualValues("s1", docs[0].Session)
}

func TestSearchRepository_ReindexingSameSessionReplacesDocument(t *testing.T) {
	req := require.New(t)
	repo := NewSearchRepository(openTestWriter(t), slog.Default())
	ctx := context.Background()
	now := time.Now().UTC()

	req.NoError(repo.IndexDiscussion(ctx, DiscussionDocument{
		Session: "s1", Topic: "Remote work", Report: "first run", EndedAt: now,
	}))
	req.NoError(repo.IndexDiscussion(ctx, DiscussionDocument{
		Session: "s1", Topic: "Remote work", Report: "second run", EndedAt: now.Add(time.Minute),
	}))

	docs, err := repo.SearchByTopic(ctx, "remote", 10)
	req.NoError(err)
	req.Len(docs, 1)
	req.Equal("second run", docs[0].Report)
}

func TestSearchRepository_NoMatches(t *testing.T) {
	req := require.New(t)
	repo := NewSearchRepository(openTestWriter(t), slog.Default())

	docs, err := repo.SearchByTopic(context.Background(), "nothing", 10)
	req.NoError(err)
	req.Empty(docs)
}
