package inworld

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/charlink/internal/protocol"
)

// MockServer is a local stand-in for the character service. It serves the
// token endpoint at /token and the gateway at /session with deterministic
// replies, so hosts can run without credentials.
type MockServer struct {
	Key    string
	Secret string

	mu         sync.Mutex
	characters []Character
	tokens     map[string]string
	conns      map[*mockConn]struct{}

	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

type mockConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	current Character
	user    protocol.User
}

func NewMockServer(characters ...Character) *MockServer {
	if len(characters) == 0 {
		characters = []Character{
			{ID: "alice", ResourceName: "workspaces/demo/characters/alice", DisplayName: "Alice"},
			{ID: "bob", ResourceName: "workspaces/demo/characters/bob", DisplayName: "Bob"},
		}
	}
	s := &MockServer{
		characters: characters,
		tokens:     make(map[string]string),
		conns:      make(map[*mockConn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/session", s.handleSession)
	s.mux = mux
	return s
}

func (s *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Configure points a connection config at a server mounted at baseURL.
func (s *MockServer) Configure(baseURL string, cfg ConnectionConfig) ConnectionConfig {
	base := strings.TrimRight(baseURL, "/")
	cfg.TokenURL = base + "/token"
	cfg.GatewayURL = strings.Replace(base, "http", "ws", 1) + "/session"
	return cfg
}

// Push sends a packet to every open session.
func (s *MockServer) Push(p protocol.Packet) {
	for _, mc := range s.snapshotConns() {
		_ = mc.event(protocol.EventPacket, p)
	}
}

// PushError sends a gateway error event to every open session.
func (s *MockServer) PushError(code, message string) {
	for _, mc := range s.snapshotConns() {
		_ = mc.event(protocol.EventError, protocol.ErrorBody{Code: code, Message: message})
	}
}

// DropAll closes every open session from the server side.
func (s *MockServer) DropAll() {
	for _, mc := range s.snapshotConns() {
		_ = mc.ws.Close()
	}
}

func (s *MockServer) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *MockServer) snapshotConns() []*mockConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*mockConn, 0, len(s.conns))
	for mc := range s.conns {
		out = append(out, mc)
	}
	return out
}

func (s *MockServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key, secret, ok := r.BasicAuth()
	if !ok || (s.Key != "" && (key != s.Key || secret != s.Secret)) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	var req protocol.TokenRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	token := uuid.NewString()
	sessionID := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = sessionID
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(protocol.TokenResponse{
		Token:          token,
		Type:           "Bearer",
		ExpirationTime: time.Now().Add(30 * time.Minute).UTC().Format(time.RFC3339),
		SessionID:      sessionID,
	})
}

func (s *MockServer) handleSession(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
	s.mu.Lock()
	sessionID, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "unknown session token", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	mc := &mockConn{ws: ws}
	s.mu.Lock()
	s.conns[mc] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, mc)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var frame protocol.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Type != protocol.FrameRequest {
			continue
		}
		s.dispatch(mc, sessionID, frame)
	}
}

func (s *MockServer) dispatch(mc *mockConn, sessionID string, frame protocol.Frame) {
	switch frame.Method {
	case protocol.MethodSessionOpen:
		var params protocol.SessionOpenParams
		_ = json.Unmarshal(frame.Params, &params)
		mc.user = params.User
		mc.current = s.characters[0]
		if ch, ok := s.findCharacter(params.Character); ok {
			mc.current = ch
		}
		current := mc.current
		_ = mc.respond(frame.ID, protocol.SessionOpenResult{
			SessionID:  sessionID,
			Characters: s.characters,
			Current:    &current,
		})
	case protocol.MethodCharactersList:
		_ = mc.respond(frame.ID, protocol.CharactersResult{Characters: s.characters})
	case protocol.MethodCharacterCurrent:
		_ = mc.respond(frame.ID, mc.current)
	case protocol.MethodCharacterSet:
		var params protocol.CharacterSetParams
		_ = json.Unmarshal(frame.Params, &params)
		ch, ok := s.findCharacter(params.ID)
		if !ok {
			_ = mc.fail(frame.ID, "not_found", fmt.Sprintf("character %q not found", params.ID))
			return
		}
		mc.current = ch
		_ = mc.respond(frame.ID, ch)
	case protocol.MethodText:
		var params protocol.TextParams
		_ = json.Unmarshal(frame.Params, &params)
		_ = mc.respond(frame.ID, struct{}{})
		mc.replyToText(params.Text)
	case protocol.MethodCustom:
		var params protocol.CustomParams
		_ = json.Unmarshal(frame.Params, &params)
		_ = mc.respond(frame.ID, struct{}{})
		_ = mc.event(protocol.EventPacket, protocol.Packet{
			PacketID: protocol.PacketID{PacketID: uuid.NewString()},
			Routing:  mc.fromCharacter(),
			Custom:   &protocol.CustomPayload{Name: params.Name},
		})
	default:
		_ = mc.fail(frame.ID, "unknown_method", frame.Method)
	}
}

func (s *MockServer) findCharacter(id string) (Character, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Character{}, false
	}
	for _, ch := range s.characters {
		if ch.ID == id || ch.ResourceName == id {
			return ch, true
		}
	}
	return Character{}, false
}

// replyToText echoes the player's line (one partial, one final) and answers
// with a streamed character utterance followed by an emotion packet.
func (mc *mockConn) replyToText(text string) {
	text = strings.TrimSpace(text)
	player := protocol.Routing{
		Source: protocol.Actor{IsPlayer: true, Name: mc.user.FullName},
		Target: protocol.Actor{IsCharacter: true, Name: mc.current.DisplayName},
	}
	playerUtterance := uuid.NewString()
	if half := len(text) / 2; half > 0 {
		_ = mc.event(protocol.EventPacket, protocol.Packet{
			PacketID: protocol.PacketID{PacketID: uuid.NewString(), UtteranceID: playerUtterance},
			Routing:  player,
			Text:     &protocol.TextPayload{Text: text[:half], Final: false},
		})
	}
	_ = mc.event(protocol.EventPacket, protocol.Packet{
		PacketID: protocol.PacketID{PacketID: uuid.NewString(), UtteranceID: playerUtterance},
		Routing:  player,
		Text:     &protocol.TextPayload{Text: text, Final: true},
	})

	reply := "I heard you: " + text
	utterance := uuid.NewString()
	for _, chunk := range []string{"I heard", "I heard you:"} {
		_ = mc.event(protocol.EventPacket, protocol.Packet{
			PacketID: protocol.PacketID{PacketID: uuid.NewString(), UtteranceID: utterance},
			Routing:  mc.fromCharacter(),
			Text:     &protocol.TextPayload{Text: chunk, Final: false},
		})
	}
	_ = mc.event(protocol.EventPacket, protocol.Packet{
		PacketID: protocol.PacketID{PacketID: uuid.NewString(), UtteranceID: utterance},
		Routing:  mc.fromCharacter(),
		Text:     &protocol.TextPayload{Text: reply, Final: true},
	})
	_ = mc.event(protocol.EventPacket, protocol.Packet{
		PacketID: protocol.PacketID{PacketID: uuid.NewString(), UtteranceID: utterance},
		Routing:  mc.fromCharacter(),
		Emotions: &protocol.EmotionPayload{
			Joy:      0.4,
			Trust:    0.3,
			Behavior: "INTEREST",
			Strength: "WEAK",
		},
	})
}

func (mc *mockConn) fromCharacter() protocol.Routing {
	return protocol.Routing{
		Source: protocol.Actor{IsCharacter: true, Name: mc.current.DisplayName},
		Target: protocol.Actor{IsPlayer: true, Name: mc.user.FullName},
	}
}

func (mc *mockConn) respond(id string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return mc.writeJSON(protocol.Frame{Type: protocol.FrameResponse, ID: id, OK: true, Payload: raw})
}

func (mc *mockConn) fail(id, code, message string) error {
	return mc.writeJSON(protocol.Frame{
		Type:  protocol.FrameResponse,
		ID:    id,
		Error: &protocol.ErrorBody{Code: code, Message: message},
	})
}

func (mc *mockConn) event(name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return mc.writeJSON(protocol.Frame{Type: protocol.FrameEvent, Event: name, Payload: raw})
}

func (mc *mockConn) writeJSON(v any) error {
	mc.writeMu.Lock()
	defer mc.writeMu.Unlock()
	_ = mc.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return mc.ws.WriteJSON(v)
}
