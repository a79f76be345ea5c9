package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/charlink/internal/connector"
	"github.com/ent0n29/charlink/internal/events"
	"github.com/ent0n29/charlink/internal/policy"
	"github.com/ent0n29/charlink/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleSessionWS streams drained events to the host on a fixed tick and
// accepts send_text, send_custom and set_character requests.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	uid := strings.TrimSpace(chi.URLParam(r, "uid"))
	c, err := s.registry.Get(uid)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.metrics.ObserveSessionEvent("ws_connected")
	logger := s.logger.With().Str("uid", uid).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, conn, c, outbound)
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for ctx.Err() == nil {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				logger.Debug().Err(err).Msg("host websocket read ended")
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_ = s.registry.Touch(uid)

		reply := s.dispatchHostMessage(ctx, c, data)
		select {
		case outbound <- reply:
		case <-ctx.Done():
		default:
			logger.Warn().Msg("host websocket outbound full, dropping reply")
		}
	}

	cancel()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

func (s *Server) dispatchHostMessage(ctx context.Context, c *connector.Connector, data []byte) any {
	parsed, err := protocol.ParseHostMessage(data)
	if err != nil {
		code := "invalid_host_message"
		if errors.Is(err, protocol.ErrUnsupportedType) {
			code = "unsupported_type"
		}
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, UID: c.UID(), Code: code, Detail: err.Error()}
	}

	switch m := parsed.(type) {
	case protocol.SendText:
		s.metrics.ObserveWSMessage("inbound", string(m.Type))
		return protocol.Ack{Type: protocol.TypeAck, Request: m.Type, OK: c.SendText(ctx, m.Message)}
	case protocol.SendCustom:
		s.metrics.ObserveWSMessage("inbound", string(m.Type))
		id, err := policy.NormalizeTrigger(m.ID)
		if err != nil {
			return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, UID: c.UID(), Code: "invalid_trigger", Detail: err.Error()}
		}
		return protocol.Ack{Type: protocol.TypeAck, Request: m.Type, OK: c.SendCustom(ctx, id)}
	case protocol.SetCharacter:
		s.metrics.ObserveWSMessage("inbound", string(m.Type))
		ch, ok := c.SetCharacter(ctx, m.CharacterID)
		if !ok {
			return protocol.Ack{Type: protocol.TypeAck, Request: m.Type, OK: false}
		}
		return protocol.Ack{Type: protocol.TypeAck, Request: m.Type, OK: true, Detail: ch}
	default:
		return protocol.ErrorEvent{Type: protocol.TypeErrorEvent, UID: c.UID(), Code: "unsupported_type", Detail: "unsupported message"}
	}
}

// writeLoop owns every write on conn. Closing conn on exit unblocks the
// reader.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, c *connector.Connector, outbound <-chan any) {
	defer conn.Close()
	interval := s.cfg.FlushInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	flush := time.NewTicker(interval)
	defer flush.Stop()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(v); err != nil {
			cancel()
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-outbound:
			if !write(msg) {
				return
			}
			s.metrics.ObserveWSMessage("outbound", string(messageTypeOf(msg)))
		case <-flush.C:
			batch := c.FlushQueue()
			if len(batch) == 0 {
				continue
			}
			encoded, err := events.EncodeAll(batch)
			if err != nil {
				s.logger.Error().Err(err).Str("uid", c.UID()).Msg("encode events")
				continue
			}
			if !write(protocol.EventsMessage{Type: protocol.TypeEvents, UID: c.UID(), Events: encoded}) {
				return
			}
			s.metrics.ObserveWSMessage("outbound", string(protocol.TypeEvents))
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				return
			}
		}
	}
}

func messageTypeOf(v any) protocol.MessageType {
	switch m := v.(type) {
	case protocol.Ack:
		return m.Type
	case protocol.ErrorEvent:
		return m.Type
	case protocol.EventsMessage:
		return m.Type
	default:
		return ""
	}
}
