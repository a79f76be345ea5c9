// Package session holds the per-player handle to the character service.
package session

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ent0n29/charlink/internal/inworld"
	"github.com/ent0n29/charlink/internal/protocol"
)

type Options struct {
	Key        string
	Secret     string
	UID        string
	Scene      string
	Character  string
	PlayerName string
	ServerID   string

	Config *inworld.ClientConfiguration

	OnDisconnect func()
	OnError      func(error)
	OnMessage    func(protocol.Packet)

	// Provider replaces the inworld client. Callbacks are not registered on
	// an injected provider.
	Provider Provider
}

// Handle owns one player's connection. The connection is built at most once;
// once it has been closed every call that needs it reports false.
type Handle struct {
	provider Provider
	onError  func(error)

	uid      string
	scene    string
	serverID string

	mu        sync.Mutex
	character string
	sessionID string
	conn      Connection
	closed    bool
}

func New(opts Options) *Handle {
	h := &Handle{
		uid:       strings.TrimSpace(opts.UID),
		scene:     strings.TrimSpace(opts.Scene),
		character: strings.TrimSpace(opts.Character),
		serverID:  strings.TrimSpace(opts.ServerID),
		onError:   opts.OnError,
		provider:  opts.Provider,
	}
	if h.uid == "" {
		h.uid = uuid.NewString()
	}
	if h.provider != nil {
		return h
	}

	client := inworld.NewClient().SetAPIKey(inworld.APIKey{Key: opts.Key, Secret: opts.Secret})
	if opts.Config != nil {
		client.SetConfiguration(*opts.Config)
	}
	if h.scene != "" {
		client.SetScene(h.scene)
	}
	if h.character != "" {
		client.SetCharacter(h.character)
	}
	if name := strings.TrimSpace(opts.PlayerName); name != "" {
		client.SetUser(inworld.User{ID: h.uid, FullName: name})
	} else {
		client.SetUser(inworld.User{ID: h.uid})
	}
	if opts.OnError != nil {
		client.SetOnError(opts.OnError)
	}
	if opts.OnDisconnect != nil {
		client.SetOnDisconnect(opts.OnDisconnect)
	}
	if opts.OnMessage != nil {
		client.SetOnMessage(opts.OnMessage)
	}
	h.provider = clientProvider{client: client}
	return h
}

// Connection builds the connection on first call. After CloseConnection it
// keeps returning the closed connection, whose calls fail.
func (h *Handle) Connection() Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == nil {
		h.conn = h.provider.Build()
	}
	return h.conn
}

// CloseConnection is a no-op until a connection has been built.
func (h *Handle) CloseConnection() {
	h.mu.Lock()
	conn := h.conn
	if conn == nil || h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()
	if err := conn.Close(); err != nil {
		h.reportError(err)
	}
}

func (h *Handle) GenerateSessionToken(ctx context.Context) error {
	tok, err := h.provider.GenerateSessionToken(ctx)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.sessionID = tok.SessionID
	h.mu.Unlock()
	return nil
}

func (h *Handle) Characters(ctx context.Context) ([]inworld.Character, bool) {
	conn := h.live()
	if conn == nil {
		return nil, false
	}
	chars, err := conn.Characters(ctx)
	if err != nil {
		h.reportError(err)
		return nil, false
	}
	return chars, true
}

func (h *Handle) CurrentCharacter(ctx context.Context) (inworld.Character, bool) {
	conn := h.live()
	if conn == nil {
		return inworld.Character{}, false
	}
	ch, err := conn.CurrentCharacter(ctx)
	if err != nil {
		h.reportError(err)
		return inworld.Character{}, false
	}
	return ch, true
}

// SetCharacter returns the current character unchanged for an unknown id.
func (h *Handle) SetCharacter(ctx context.Context, id string) (inworld.Character, bool) {
	conn := h.live()
	if conn == nil {
		return inworld.Character{}, false
	}
	chars, err := conn.Characters(ctx)
	if err != nil {
		h.reportError(err)
		return inworld.Character{}, false
	}

	id = strings.TrimSpace(id)
	for _, ch := range chars {
		if ch.ID != id {
			continue
		}
		h.mu.Lock()
		h.character = ch.ID
		h.mu.Unlock()
		switched, err := conn.SetCurrentCharacter(ctx, ch)
		if err != nil {
			h.reportError(err)
			return inworld.Character{}, false
		}
		return switched, true
	}
	return h.CurrentCharacter(ctx)
}

func (h *Handle) SendText(ctx context.Context, message string) bool {
	conn := h.live()
	if conn == nil {
		return false
	}
	if err := conn.SendText(ctx, message); err != nil {
		h.reportError(err)
		return false
	}
	return true
}

func (h *Handle) SendCustom(ctx context.Context, id string) bool {
	conn := h.live()
	if conn == nil {
		return false
	}
	if err := conn.SendCustom(ctx, id); err != nil {
		h.reportError(err)
		return false
	}
	return true
}

func (h *Handle) CharacterID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.character
}

func (h *Handle) SceneID() string { return h.scene }

func (h *Handle) SessionID() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID, h.sessionID != ""
}

func (h *Handle) ServerID() (string, bool) {
	return h.serverID, h.serverID != ""
}

func (h *Handle) UID() string { return h.uid }

func (h *Handle) live() Connection {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	return h.conn
}

func (h *Handle) reportError(err error) {
	if h.onError != nil && err != nil {
		h.onError(err)
	}
}
