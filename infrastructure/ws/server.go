package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"discussion-lab/domain"
	"discussion-lab/domain/event"
	"discussion-lab/internal"
	"discussion-lab/observability"
	"discussion-lab/projection"
	"discussion-lab/repositories"
	"discussion-lab/runtime"
	"discussion-lab/services"
)

const defaultSearchLimit = 10

// Server upgrades clients onto the discussions channel and serves the
// introspection API.
type Server struct {
	cfg         *internal.Config
	log         *slog.Logger
	service     services.IDiscussionService
	registry    *runtime.Registry
	timeline    *projection.Timeline
	monitor     *observability.Monitor
	transcripts repositories.ITranscriptRepository
	search      repositories.ISearchRepository
	validate    *validator.Validate
	upgrader    websocket.Upgrader
}

func NewServer(cfg *internal.Config, log *slog.Logger, service services.IDiscussionService,
	registry *runtime.Registry, timeline *projection.Timeline, monitor *observability.Monitor,
	transcripts repositories.ITranscriptRepository, search repositories.ISearchRepository) *Server {
	return &Server{
		cfg:         cfg,
		log:         log,
		service:     service,
		registry:    registry,
		timeline:    timeline,
		monitor:     monitor,
		transcripts: transcripts,
		search:      search,
		validate:    validator.New(),
		upgrader:    websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients come from anywhere; auth is out of scope here.
				return true
			},
		},
	}
}

func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/discussions", s.HandleWebSocket)
	e.GET("/api/discussions", s.listDiscussions)
	e.GET("/api/discussions/:id", s.getDiscussion)
	e.GET("/api/discussions/:id/timeline", s.getTimeline)
	e.GET("/api/discussions/:id/archive", s.getArchive)
	e.GET("/api/search", s.searchDiscussions)
	e.GET("/api/stats", s.getStats)
}

// HandleWebSocket upgrades the request and runs the connection pumps.
func (s *Server) HandleWebSocket(c echo.Context) error {
	ws, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return err
	}

	conn := newConn(ws, s.cfg.ConnectionBufferSize, s.log)
	s.log.Info("connection opened", "connection", conn.ID())

	ws.SetReadLimit(s.cfg.MaxMessageSize)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump reads frames until the client goes away, then detaches the
// connection from every room it joined.
func (s *Server) readPump(conn *Conn) {
	defer func() {
		s.service.Disconnect(context.Background(), conn.ID())
		conn.close()
		s.log.Info("connection closed", "connection", conn.ID())
	}()

	_ = conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	conn.ws.SetPongHandler(func(string) error {
		return conn.ws.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	})

	for {
		_, message, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("websocket read failed", "connection", conn.ID(), "error", err)
			}
			return
		}
		s.handleFrame(conn, message)
	}
}

func (s *Server) writePump(conn *Conn) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		conn.close()
	}()

	for {
		select {
		case <-conn.done:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			_ = conn.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-conn.send:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Warn("websocket write failed", "connection", conn.ID(), "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleFrame dispatches one inbound frame by its event name. Malformed
// payloads are reported back on the same connection and nothing else
// happens.
func (s *Server) handleFrame(conn *Conn, data []byte) {
	ctx := context.Background()

	var frame event.Envelope
	if err := json.Unmarshal(data, &frame); err != nil {
		s.sendError(conn, "invalid frame", err)
		return
	}

	switch frame.Event {
	case event.NameJoinDiscussion:
		var payload event.JoinDiscussion
		if !s.decode(conn, frame.Data, &payload) {
			return
		}
		s.service.Join(ctx, conn.ID(), conn, payload)
	case event.NameUserMessage:
		var payload event.UserMessage
		if !s.decode(conn, frame.Data, &payload) {
			return
		}
		s.service.PostMessage(ctx, conn.ID(), payload)
	case event.NameAskAgent:
		var payload event.AskAgent
		if !s.decode(conn, frame.Data, &payload) {
			return
		}
		s.service.AskPersona(ctx, conn.ID(), payload)
	case event.NameRequestConsensus:
		var payload event.SessionRequest
		if !s.decode(conn, frame.Data, &payload) {
			return
		}
		s.service.RequestConsensus(ctx, conn.ID(), payload)
	case event.NameRequestSummary:
		var payload event.SessionRequest
		if !s.decode(conn, frame.Data, &payload) {
			return
		}
		s.service.RequestSummary(ctx, conn.ID(), payload)
	case event.NameEndDiscussion:
		var payload event.SessionRequest
		if !s.decode(conn, frame.Data, &payload) {
			return
		}
		s.service.EndDiscussion(ctx, conn.ID(), payload)
	case event.NameRequestAgentList:
		s.service.AgentList(ctx, conn.ID())
	case event.NameTyping:
		var payload event.TypingNotice
		if !s.decode(conn, frame.Data, &payload) {
			return
		}
		s.service.Typing(ctx, payload)
	case event.NameStopTyping:
		var payload event.TypingNotice
		if !s.decode(conn, frame.Data, &payload) {
			return
		}
		s.service.StopTyping(ctx, payload)
	default:
		s.sendError(conn, "unknown event", fmt.Errorf("unsupported event %q", frame.Event))
	}
}

// decode unmarshals and validates an inbound payload, reporting failures
// to the sender.
func (s *Server) decode(conn *Conn, data json.RawMessage, payload any) bool {
	if err := json.Unmarshal(data, payload); err != nil {
		s.sendError(conn, "invalid payload", err)
		return false
	}
	if err := s.validate.Struct(payload); err != nil {
		s.sendError(conn, "invalid payload", err)
		return false
	}
	return true
}

func (s *Server) sendError(conn *Conn, message string, err error) {
	s.log.Debug("rejecting frame", "connection", conn.ID(), "reason", message, "error", err)
	if consumeErr := conn.Consume(context.Background(), event.Error{
		Message: message,
		Err:     err.Error(),
		Target:  conn.ID(),
	}); consumeErr != nil {
		s.log.Warn("failed to report error to client", "connection", conn.ID(), "error", consumeErr)
	}
}

func (s *Server) listDiscussions(c echo.Context) error {
	infos := lo.FilterMap(s.service.SessionIDs(), func(id domain.SessionID, _ int) (runtime.RoomInfo, bool) {
		return s.service.RoomInfo(id)
	})
	return c.JSON(http.StatusOK, infos)
}

func (s *Server) getDiscussion(c echo.Context) error {
	info, ok := s.service.RoomInfo(domain.SessionID(c.Param("id")))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "discussion not found")
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) getTimeline(c echo.Context) error {
	return c.JSON(http.StatusOK, s.timeline.Entries(domain.SessionID(c.Param("id"))))
}

// getArchive serves the persisted view of a discussion: the archived
// turns plus any final report, also for sessions that already ended.
func (s *Server) getArchive(c echo.Context) error {
	sessionID := domain.SessionID(c.Param("id"))

	turns, err := s.transcripts.GetTurns(sessionID)
	if err != nil {
		s.log.Error("archive read failed", "session", sessionID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "archive unavailable")
	}
	reports, err := s.transcripts.GetReports(sessionID)
	if err != nil {
		s.log.Error("archive read failed", "session", sessionID, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "archive unavailable")
	}

	return c.JSON(http.StatusOK, echo.Map{"turns": turns, "reports": reports})
}

// searchDiscussions queries the index of ended discussions by topic or
// report content.
func (s *Server) searchDiscussions(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing query parameter q")
	}

	limit := defaultSearchLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}

	docs, err := s.search.SearchByTopic(c.Request().Context(), query, limit)
	if err != nil {
		s.log.Error("discussion search failed", "query", query, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "search unavailable")
	}
	return c.JSON(http.StatusOK, docs)
}

func (s *Server) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.monitor.Snapshot(s.service.SessionCount(), s.registry.ConnectionCount()))
}
