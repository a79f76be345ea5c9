package inworld

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/charlink/internal/protocol"
	"github.com/ent0n29/charlink/internal/reliability"
)

const (
	writeTimeout     = 3 * time.Second
	dialBackoffBase  = 200 * time.Millisecond
	dialBackoffLimit = 2 * time.Second
)

type connState int

const (
	stateIdle connState = iota
	stateOpen
	stateClosed
)

// Connection is one gateway session. It opens lazily on the first operation
// and reopens after a remote drop; Close is final.
//
// Packets are decoded on a single read goroutine per socket and handed to the
// client's message callback in arrival order.
type Connection struct {
	client *Client

	openMu sync.Mutex

	mu        sync.Mutex
	state     connState
	ws        *websocket.Conn
	done      chan struct{}
	pending   map[string]chan protocol.Frame
	sessionID string

	writeMu sync.Mutex
}

func newConnection(c *Client) *Connection {
	return &Connection{
		client:  c,
		pending: make(map[string]chan protocol.Frame),
	}
}

// SessionID is the gateway session id once opened.
func (c *Connection) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Connection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

// Open connects now instead of waiting for the first operation.
func (c *Connection) Open(ctx context.Context) error {
	return c.ensureOpen(ctx)
}

func (c *Connection) CurrentCharacter(ctx context.Context) (Character, error) {
	var out Character
	if err := c.request(ctx, protocol.MethodCharacterCurrent, struct{}{}, &out); err != nil {
		return Character{}, err
	}
	return out, nil
}

func (c *Connection) Characters(ctx context.Context) ([]Character, error) {
	var out protocol.CharactersResult
	if err := c.request(ctx, protocol.MethodCharactersList, struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Characters, nil
}

func (c *Connection) SetCurrentCharacter(ctx context.Context, ch Character) (Character, error) {
	var out Character
	if err := c.request(ctx, protocol.MethodCharacterSet, protocol.CharacterSetParams{ID: ch.ID}, &out); err != nil {
		return Character{}, err
	}
	return out, nil
}

func (c *Connection) SendText(ctx context.Context, text string) error {
	return c.request(ctx, protocol.MethodText, protocol.TextParams{Text: text}, nil)
}

func (c *Connection) SendCustom(ctx context.Context, name string) error {
	return c.request(ctx, protocol.MethodCustom, protocol.CustomParams{Name: name}, nil)
}

// Close ends the session. In-flight requests fail with ErrConnectionClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	ws := c.ws
	c.mu.Unlock()

	if ws == nil {
		return nil
	}
	c.writeMu.Lock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closed"))
	c.writeMu.Unlock()
	return ws.Close()
}

func (c *Connection) request(ctx context.Context, method string, params any, out any) error {
	if err := c.ensureOpen(ctx); err != nil {
		return err
	}
	return c.roundTrip(ctx, method, params, out)
}

func (c *Connection) ensureOpen(ctx context.Context) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()

	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	switch st {
	case stateClosed:
		return ErrConnectionClosed
	case stateOpen:
		return nil
	}

	cfg, scene, character, user := c.client.snapshot()

	token, err := c.client.sessionToken(ctx)
	if err != nil {
		return err
	}

	var ws *websocket.Conn
	err = reliability.Retry(ctx, cfg.Connection.MaxDialAttempts, dialBackoffBase, dialBackoffLimit, func(int) error {
		conn, dialErr := c.dial(ctx, cfg.Connection, token)
		if dialErr != nil {
			return dialErr
		}
		ws = conn
		return nil
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		_ = ws.Close()
		return ErrConnectionClosed
	}
	done := make(chan struct{})
	c.ws = ws
	c.done = done
	c.state = stateOpen
	c.mu.Unlock()

	go c.readPump(ws, done)

	var opened protocol.SessionOpenResult
	err = c.roundTrip(ctx, protocol.MethodSessionOpen, protocol.SessionOpenParams{
		Scene:     scene,
		Character: character,
		User:      protocol.User{ID: user.ID, FullName: user.FullName},
		Capabilities: protocol.Capabilities{
			Audio:    cfg.Capabilities.Audio,
			Emotions: cfg.Capabilities.Emotions,
		},
	}, &opened)
	if err != nil {
		_ = ws.Close()
		return fmt.Errorf("inworld session open: %w", err)
	}

	c.mu.Lock()
	c.sessionID = opened.SessionID
	if c.sessionID == "" {
		c.sessionID = token.SessionID
	}
	c.mu.Unlock()
	return nil
}

func (c *Connection) dial(ctx context.Context, cfg ConnectionConfig, token SessionToken) (*websocket.Conn, error) {
	wsURL, err := gatewayURL(cfg.GatewayURL, token.SessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", reliability.ErrPermanent, err)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: cfg.DialTimeout,
	}
	header := http.Header{}
	tokenType := token.Type
	if tokenType == "" {
		tokenType = "Bearer"
	}
	header.Set("Authorization", tokenType+" "+token.Token)

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("inworld gateway dial failed (%s): %w", resp.Status, reliability.ErrPermanent)
			}
			return nil, fmt.Errorf("inworld gateway dial failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("inworld gateway dial failed: %w", err)
	}
	return conn, nil
}

func (c *Connection) roundTrip(ctx context.Context, method string, params any, out any) error {
	id := uuid.NewString()
	ch := make(chan protocol.Frame, 1)

	c.mu.Lock()
	switch c.state {
	case stateClosed:
		c.mu.Unlock()
		return ErrConnectionClosed
	case stateIdle:
		c.mu.Unlock()
		return ErrDisconnected
	}
	ws := c.ws
	done := c.done
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	cfg, _, _, _ := c.client.snapshot()
	ctx, cancel := context.WithTimeout(ctx, cfg.Connection.RequestTimeout)
	defer cancel()

	if err := c.write(ws, protocol.Request{Type: protocol.FrameRequest, ID: id, Method: method, Params: params}); err != nil {
		return fmt.Errorf("inworld %s write: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if c.IsClosed() {
			return ErrConnectionClosed
		}
		return ErrDisconnected
	case frame := <-ch:
		if !frame.OK {
			return gatewayError(method, frame.Error)
		}
		if out == nil || len(frame.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(frame.Payload, out); err != nil {
			return fmt.Errorf("inworld %s decode: %w", method, err)
		}
		return nil
	}
}

func (c *Connection) write(ws *websocket.Conn, payload any) error {
	if ws == nil {
		return errors.New("inworld connection is nil")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	defer ws.SetWriteDeadline(time.Time{})
	return ws.WriteJSON(payload)
}

func (c *Connection) readPump(ws *websocket.Conn, done chan struct{}) {
	defer c.teardown(ws, done)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.client.reportError(&Error{Op: "read", Code: "invalid_frame", Message: err.Error()})
			continue
		}
		switch frame.Type {
		case protocol.FrameResponse:
			c.mu.Lock()
			ch := c.pending[frame.ID]
			c.mu.Unlock()
			if ch != nil {
				select {
				case ch <- frame:
				default:
				}
			}
		case protocol.FrameEvent:
			c.handleEvent(frame)
		default:
			// ignore
		}
	}
}

func (c *Connection) handleEvent(frame protocol.Frame) {
	switch frame.Event {
	case protocol.EventPacket:
		p, err := protocol.ParsePacket(frame.Payload)
		if err != nil {
			if !errors.Is(err, protocol.ErrEmptyPacket) {
				c.client.reportError(&Error{Op: "packet", Code: "invalid_packet", Message: err.Error()})
			}
			return
		}
		c.client.deliver(p)
	case protocol.EventError:
		var body protocol.ErrorBody
		if err := json.Unmarshal(frame.Payload, &body); err != nil {
			body = protocol.ErrorBody{Code: "unknown", Message: strings.TrimSpace(string(frame.Payload))}
		}
		c.client.reportError(gatewayError("gateway", &body))
	}
}

func (c *Connection) teardown(ws *websocket.Conn, done chan struct{}) {
	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
		if c.state == stateOpen {
			c.state = stateIdle
		}
	}
	closed := c.state == stateClosed
	close(done)
	c.mu.Unlock()

	_ = ws.Close()
	if !closed {
		c.client.notifyDisconnect()
	}
}

func gatewayURL(raw, sessionID string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported gateway url scheme %q", u.Scheme)
	}
	if u.Path == "" {
		u.Path = "/"
	}
	if sessionID != "" {
		q := u.Query()
		q.Set("session_id", sessionID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
