package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"cairn/internal/agent"
	"cairn/internal/gateway/handlers"
	"cairn/pkg/logger"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Streamer runs generations and resumes with event delivery.
type Streamer interface {
	Stream(ctx context.Context, req agent.Request) (<-chan agent.Event, error)
	Resume(ctx context.Context, threadID, interruptID string, response json.RawMessage, opts *agent.ResumeOptions) (*agent.Result, error)
}

// Handler upgrades the connection, reads one ClientMessage and streams the
// events of the call until its done or error event. Closing the socket
// cancels the call.
type Handler struct {
	engine Streamer
	log    zerolog.Logger
}

// NewHandler creates a streaming handler.
func NewHandler(engine Streamer) *Handler {
	return &Handler{engine: engine, log: logger.Component("websocket")}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	s := &session{
		id:       uuid.NewString(),
		threadID: mux.Vars(r)["id"],
		conn:     conn,
		engine:   h.engine,
		log:      h.log,
	}
	s.run()
}

type session struct {
	id       string
	threadID string
	conn     *websocket.Conn
	engine   Streamer
	log      zerolog.Logger
}

func (s *session) run() {
	defer s.conn.Close()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	var msg ClientMessage
	if err := s.conn.ReadJSON(&msg); err != nil {
		s.log.Debug().Err(err).Str("client_id", s.id).Msg("no request received")
		s.sendError(handlers.ErrCodeInvalidRequest, "failed to parse message")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.readPump(cancel)

	events, err := s.start(ctx, msg)
	if err != nil {
		s.sendError(handlers.ErrCodeInvalidRequest, err.Error())
		return
	}
	s.writePump(events)
}

// start launches the call and returns its event stream.
func (s *session) start(ctx context.Context, msg ClientMessage) (<-chan agent.Event, error) {
	s.log.Debug().Str("client_id", s.id).Str("type", msg.Type).Str("thread_id", s.threadID).Msg("stream request")
	switch msg.Type {
	case TypeGenerate:
		if msg.Generate == nil {
			return nil, errors.New("generate is required")
		}
		return s.engine.Stream(ctx, msg.Generate.ToAgent(s.threadID))
	case TypeResume:
		if msg.Resume == nil || msg.Resume.InterruptID == "" {
			return nil, errors.New("resume.interrupt_id is required")
		}
		return s.resume(ctx, *msg.Resume), nil
	}
	return nil, fmt.Errorf("unknown message type %q", msg.Type)
}

func (s *session) resume(ctx context.Context, req handlers.ResumeRequest) <-chan agent.Event {
	ch := make(chan agent.Event, 64)
	send := func(ev agent.Event) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	}
	go func() {
		defer close(ch)
		opts := req.Options()
		opts.OnEvent = send
		res, err := s.engine.Resume(ctx, s.threadID, req.InterruptID, req.Response, opts)
		if err != nil {
			send(agent.Event{Type: agent.EventError, Error: err.Error()})
			return
		}
		send(agent.Event{Type: agent.EventDone, Result: res})
	}()
	return ch
}

// readPump drains control frames and cancels the call when the peer goes away.
func (s *session) readPump(cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.log.Error().Err(err).Str("client_id", s.id).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (s *session) writePump(events <-chan agent.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteJSON(ev); err != nil {
				s.log.Error().Err(err).Str("client_id", s.id).Msg("WebSocket write error")
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) sendError(code, message string) {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = s.conn.WriteJSON(ErrorMessage{Type: TypeError, Code: code, Message: message})
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
