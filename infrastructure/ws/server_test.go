package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"discussion-lab/contract"
	"discussion-lab/domain"
	"discussion-lab/domain/event"
	"discussion-lab/internal"
	"discussion-lab/repositories"
	"discussion-lab/runtime"
)

// recordingService captures dispatched calls instead of running rooms.
type recordingService struct {
	calls    []string
	lastJoin event.JoinDiscussion
	lastMsg  event.UserMessage
}

func (s *recordingService) Join(_ context.Context, _ string, _ contract.EventSink, p event.JoinDiscussion) {
	s.calls = append(s.calls, "join")
	s.lastJoin = p
}

func (s *recordingService) PostMessage(_ context.Context, _ string, p event.UserMessage) {
	s.calls = append(s.calls, "message")
	s.lastMsg = p
}

func (s *recordingService) AskPersona(_ context.Context, _ string, _ event.AskAgent) {
	s.calls = append(s.calls, "ask")
}

func (s *recordingService) RequestConsensus(_ context.Context, _ string, _ event.SessionRequest) {
	s.calls = append(s.calls, "consensus")
}

func (s *recordingService) RequestSummary(_ context.Context, _ string, _ event.SessionRequest) {
	s.calls = append(s.calls, "summary")
}

func (s *recordingService) EndDiscussion(_ context.Context, _ string, _ event.SessionRequest) {
	s.calls = append(s.calls, "end")
}

func (s *recordingService) Typing(_ context.Context, _ event.TypingNotice) {
	s.calls = append(s.calls, "typing")
}

func (s *recordingService) StopTyping(_ context.Context, _ event.TypingNotice) {
	s.calls = append(s.calls, "stop_typing")
}

func (s *recordingService) AgentList(_ context.Context, _ string) {
	s.calls = append(s.calls, "agents")
}

func (s *recordingService) Disconnect(_ context.Context, _ string) {
	s.calls = append(s.calls, "disconnect")
}

func (s *recordingService) SessionCount() int              { return 0 }
func (s *recordingService) SessionIDs() []domain.SessionID { return nil }

func (s *recordingService) RoomInfo(domain.SessionID) (runtime.RoomInfo, bool) {
	return runtime.RoomInfo{}, false
}

type stubArchive struct {
	turns   []repositories.DiskTurn
	reports []repositories.DiskReport
	err     error
}

func (a *stubArchive) StoreTurn(repositories.DiskTurn) error     { return nil }
func (a *stubArchive) StoreReport(repositories.DiskReport) error { return nil }

func (a *stubArchive) GetTurns(domain.SessionID) ([]repositories.DiskTurn, error) {
	return a.turns, a.err
}

func (a *stubArchive) GetReports(domain.SessionID) ([]repositories.DiskReport, error) {
	return a.reports, a.err
}

type stubSearch struct {
	lastQuery string
	lastLimit int
	docs      []repositories.DiscussionDocument
}

func (s *stubSearch) IndexDiscussion(context.Context, repositories.DiscussionDocument) error {
	return nil
}

func (s *stubSearch) SearchByTopic(_ context.Context, query string, limit int) ([]repositories.DiscussionDocument, error) {
	s.lastQuery = query
	s.lastLimit = limit
	return s.docs, nil
}

func newTestServer(service *recordingService) (*Server, *Conn) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := &Server{
		cfg:         &internal.Config{ConnectionBufferSize: 8},
		log:         log,
		service:     service,
		transcripts: &stubArchive{},
		search:      &stubSearch{},
		validate:    validator.New(),
	}
	return server, newConn(nil, 8, log)
}

func mustFrame(t *testing.T, name string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(map[string]any{"event": name, "data": json.RawMessage(data)})
	require.NoError(t, err)
	return frame
}

func readEnvelope(t *testing.T, conn *Conn) map[string]any {
	t.Helper()
	select {
	case frame := <-conn.send:
		var out map[string]any
		require.NoError(t, json.Unmarshal(frame, &out))
		return out
	default:
		t.Fatal("no frame queued")
		return nil
	}
}

func TestHandleFrameDispatchesByEventName(t *testing.T) {
	// Given a connected client
	service := &recordingService{}
	server, conn := newTestServer(service)

	// When valid frames arrive
	server.handleFrame(conn, mustFrame(t, event.NameJoinDiscussion, event.JoinDiscussion{
		Session: "s1", Topic: "Remote work", UserID: "alice",
	}))
	server.handleFrame(conn, mustFrame(t, event.NameUserMessage, event.UserMessage{
		Session: "s1", Message: "hello",
	}))
	server.handleFrame(conn, mustFrame(t, event.NameRequestAgentList, struct{}{}))

	// Then each is routed to the matching operation
	require.Equal(t, []string{"join", "message", "agents"}, service.calls)
	require.Equal(t, "Remote work", service.lastJoin.Topic)
	require.Equal(t, "hello", service.lastMsg.Message)
}

func TestHandleFrameRejectsMissingRequiredFields(t *testing.T) {
	// Given a join frame without a user id
	service := &recordingService{}
	server, conn := newTestServer(service)

	// When it arrives
	server.handleFrame(conn, mustFrame(t, event.NameJoinDiscussion, map[string]string{
		"sessionId": "s1", "topic": "Remote work",
	}))

	// Then nothing is dispatched and the sender gets an error event
	require.Empty(t, service.calls)
	envelope := readEnvelope(t, conn)
	require.Equal(t, event.NameError, envelope["event"])
}

func TestHandleFrameRejectsUnknownEvent(t *testing.T) {
	service := &recordingService{}
	server, conn := newTestServer(service)

	server.handleFrame(conn, mustFrame(t, "launch_rocket", struct{}{}))

	require.Empty(t, service.calls)
	envelope := readEnvelope(t, conn)
	require.Equal(t, event.NameError, envelope["event"])
}

func TestHandleFrameRejectsMalformedJSON(t *testing.T) {
	service := &recordingService{}
	server, conn := newTestServer(service)

	server.handleFrame(conn, []byte("{not json"))

	require.Empty(t, service.calls)
	envelope := readEnvelope(t, conn)
	require.Equal(t, event.NameError, envelope["event"])
}

func TestConnConsumeDropsWhenBufferFull(t *testing.T) {
	// Given a connection with a single-slot buffer
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn := newConn(nil, 1, log)

	// When two events are offered without a draining pump
	first := conn.Consume(context.Background(), event.UserTyping{Session: "s1", UserID: "alice"})
	second := conn.Consume(context.Background(), event.UserTyping{Session: "s1", UserID: "alice"})

	// Then the second is dropped with the buffer error
	require.NoError(t, first)
	require.ErrorIs(t, second, ErrBufferFull)
}

func TestSearchEndpointQueriesTheIndex(t *testing.T) {
	// Given an index holding one ended discussion
	server, _ := newTestServer(&recordingService{})
	search := &stubSearch{docs: []repositories.DiscussionDocument{
		{Session: "s1", Topic: "Remote work", Report: "hybrid won"},
	}}
	server.search = search

	// When a client searches by topic
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/search?q=remote&limit=5", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, server.searchDiscussions(e.NewContext(req, rec)))

	// Then the query reaches the index and the matches come back
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "remote", search.lastQuery)
	require.Equal(t, 5, search.lastLimit)

	var docs []repositories.DiscussionDocument
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	require.Equal(t, "Remote work", docs[0].Topic)
}

func TestSearchEndpointRequiresQuery(t *testing.T) {
	server, _ := newTestServer(&recordingService{})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	err := server.searchDiscussions(e.NewContext(req, httptest.NewRecorder()))

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestArchiveEndpointReturnsStoredTurnsAndReports(t *testing.T) {
	// Given an archive with one turn and one report for the session
	server, _ := newTestServer(&recordingService{})
	server.transcripts = &stubArchive{
		turns:   []repositories.DiskTurn{{Session: "s1", Speaker: "user", Message: "hello"}},
		reports: []repositories.DiskReport{{Session: "s1", Topic: "Remote work", Report: "hybrid won"}},
	}

	// When the archive of that session is requested
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("s1")
	require.NoError(t, server.getArchive(c))

	// Then both are served together
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Turns   []repositories.DiskTurn   `json:"turns"`
		Reports []repositories.DiskReport `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Turns, 1)
	require.Equal(t, "hello", body.Turns[0].Message)
	require.Len(t, body.Reports, 1)
	require.Equal(t, "hybrid won", body.Reports[0].Report)
}
