package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tdxcore/leadqualifier/internal/errs"
)

const saturationCloseAfter = 30 * time.Second

// session is one open WebSocket connection. Reads are handled serially in
// readLoop; writes go through a buffered channel drained by writeLoop so a
// slow client never blocks the hub's event fan-out.
type session struct {
	hub    *Hub
	conn   *websocket.Conn
	id     string
	userID string // empty for an anonymous (unauthenticated) connection

	send chan []byte

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	fullSince atomic.Int64 // unixnano when the send buffer first became full, 0 if not saturated
	dropped   atomic.Int64
}

func newSession(hub *Hub, conn *websocket.Conn, userID string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		hub:    hub,
		conn:   conn,
		id:     uuid.NewString(),
		userID: userID,
		send:   make(chan []byte, hub.cfg.bufferSize()),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *session) run() {
	s.hub.register(s)
	defer s.hub.unregister(s)
	defer s.closeConn()

	s.resetReadDeadline()
	s.conn.SetPingHandler(func(string) error { s.resetReadDeadline(); return nil })

	s.writeConnected()
	go s.writeLoop()
	go s.heartbeatLoop()
	s.readLoop()
}

func (s *session) closeConn() {
	s.closeOnce.Do(func() {
		s.cancel()
		close(s.send)
		_ = s.conn.Close()
	})
}

func (s *session) resetReadDeadline() {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.cfg.heartbeatTimeout()))
}

func (s *session) readLoop() {
	s.conn.SetReadLimit(1 << 20)
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.resetReadDeadline()

		var frame inFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError("", "invalid_frame", err.Error())
			continue
		}
		switch frame.Type {
		case frameHeartbeat:
			// resetReadDeadline above already covers liveness.
		case frameRequest:
			s.handleRequest(data, &frame)
		default:
			s.sendError(frame.ID, "unsupported_frame", "unsupported frame type "+frame.Type)
		}
	}
}

func (s *session) handleRequest(raw []byte, frame *inFrame) {
	if err := validateRequestFrame(raw); err != nil {
		s.sendError(frame.ID, "invalid_request", err.Error())
		return
	}
	var payload requestPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		s.sendError(frame.ID, "invalid_request", err.Error())
		return
	}

	result, err := s.hub.router.dispatch(s.ctx, frame.Resource, payload)
	if err != nil {
		code, msg := classifyError(err)
		s.sendError(frame.ID, code, msg)
		return
	}
	s.sendResponse(frame.ID, frame.Resource, result)
}

func (s *session) writeLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg, ok := <-s.send:
			if !ok {
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func (s *session) heartbeatLoop() {
	ticker := time.NewTicker(s.hub.cfg.heartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.enqueue(outFrame{Type: frameHeartbeat})
			s.checkSaturation()
		}
	}
}

// checkSaturation closes the connection once its send buffer has stayed
// full continuously for saturationCloseAfter, per spec.md §4.8.
func (s *session) checkSaturation() {
	since := s.fullSince.Load()
	if since == 0 {
		return
	}
	if time.Since(time.Unix(0, since)) >= saturationCloseAfter {
		s.hub.logger.Warn("closing saturated gateway session", "session_id", s.id, "dropped", s.dropped.Load())
		s.closeConn()
	}
}

func (s *session) writeConnected() {
	s.enqueue(outFrame{
		Type: frameConnected,
		Payload: map[string]any{
			"session_id":  s.id,
			"server_time": time.Now().UTC(),
		},
	})
}

func (s *session) sendResponse(id, resource string, payload any) {
	s.enqueue(outFrame{Type: frameResponse, ID: id, Resource: resource, Payload: payload})
}

func (s *session) sendError(id, code, message string) {
	s.enqueue(outFrame{Type: frameError, ID: id, Payload: errorPayload{Code: code, Message: message}})
}

func (s *session) sendEvent(eventType string, data any) {
	s.enqueue(outFrame{Type: frameEvent, Payload: eventPayload{Type: eventType, Data: data}})
}

// enqueue is a non-blocking send. When the buffer is full the frame is
// dropped and the saturation clock starts (or keeps running); a client
// that drains its buffer again within saturationCloseAfter is never
// disconnected.
func (s *session) enqueue(frame outFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.hub.logger.Error("gateway: failed to marshal frame", "error", err)
		return
	}
	select {
	case s.send <- data:
		s.fullSince.Store(0)
	default:
		s.dropped.Add(1)
		s.fullSince.CompareAndSwap(0, time.Now().UnixNano())
	}
}

func classifyError(err error) (code, message string) {
	return string(errs.KindOf(err)), err.Error()
}
