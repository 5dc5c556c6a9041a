package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/postcraft/internal/protocol"
)

const (
	wsWriteWait  = 10 * time.Second
	wsReadWait   = 120 * time.Second
	wsPingPeriod = 50 * time.Second
)

// handleSessionWS streams session events. The client may send
// client_control messages: "sync" requests a fresh snapshot and "ping" is
// answered with the same snapshot.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	id, err := sessionID(r)
	if err != nil {
		respondError(w, err)
		return
	}
	sess, err := s.sessions.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.metrics.SessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := s.hub.Subscribe(id)
	defer unsubscribe()
	direct := make(chan any, 8)
	direct <- protocol.NewSessionUpdated(sess, "snapshot")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		// Closing the connection unblocks the read loop.
		defer conn.Close()
		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
				continue
			case m, ok := <-events:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
						time.Now().Add(wsWriteWait))
					return
				}
				msg = m
			case m := <-direct:
				msg = m
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("websocket write failed", zap.String("session_id", id), zap.Error(err))
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.enqueue(direct, protocol.NewErrorEvent(id, "invalid_client_message", "gateway", err.Error(), false))
			continue
		}
		control := parsed.(protocol.ClientControl)
		s.metrics.WSMessage("inbound", string(control.Type))
		snap, err := s.sessions.Get(ctx, id)
		if err != nil {
			s.enqueue(direct, protocol.NewErrorEvent(id, "session_unavailable", "session", "session is no longer available", false))
			continue
		}
		s.enqueue(direct, protocol.NewSessionUpdated(snap, control.Action))
	}

	cancel()
	<-writerDone
	s.metrics.SessionEvent("ws_disconnected")
}

// enqueue keeps websocket writes single-threaded; it drops when the
// outbound queue is saturated.
func (s *Server) enqueue(out chan<- any, msg any) {
	select {
	case out <- msg:
	default:
		if t, ok := messageTypeOf(msg); ok {
			s.metrics.WSMessage("dropped", string(t))
		}
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.SessionUpdated:
		return m.Type, true
	case protocol.OrchestrationStarted:
		return m.Type, true
	case protocol.OrchestrationCompleted:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
