package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ent0n29/charlink/internal/config"
	"github.com/ent0n29/charlink/internal/connector"
	"github.com/ent0n29/charlink/internal/inworld"
	"github.com/ent0n29/charlink/internal/observability"
	"github.com/ent0n29/charlink/internal/protocol"
	"github.com/ent0n29/charlink/internal/transcript"
)

type testEnv struct {
	api      *httptest.Server
	registry *connector.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mock := inworld.NewMockServer()
	provider := httptest.NewServer(mock)
	t.Cleanup(provider.Close)

	cfg := config.Config{
		SessionInactivityTimeout: time.Minute,
		FlushInterval:            20 * time.Millisecond,
		Inworld:                  config.InworldConfig{ProviderMode: config.ProviderMock},
	}
	metrics := observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", time.Now().UnixNano()))
	store := transcript.NewInMemoryStore()
	recorder := transcript.NewRecorder(store, 64, zerolog.Nop())
	t.Cleanup(func() { _ = recorder.Close(context.Background()) })

	conn := mock.Configure(provider.URL, inworld.ConnectionConfig{RequestTimeout: 2 * time.Second})
	registry := connector.NewRegistry(func(req connector.CreateRequest) *connector.Connector {
		character := req.Character
		if character == "" {
			character = "alice"
		}
		return connector.New(connector.Options{
			Key:        "k",
			Secret:     "s",
			UID:        req.UID,
			Scene:      "workspaces/demo/scenes/lobby",
			Character:  character,
			PlayerName: req.PlayerName,
			ServerID:   req.ServerID,
			Connection: conn,
			Logger:     zerolog.Nop(),
			Metrics:    metrics,
			Recorder:   recorder,
		})
	}, cfg.SessionInactivityTimeout, metrics)
	t.Cleanup(registry.CloseAll)

	api := httptest.NewServer(New(cfg, registry, store, metrics, zerolog.Nop()).Router())
	t.Cleanup(api.Close)
	return &testEnv{api: api, registry: registry}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.api.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res.StatusCode, out
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	status, created := env.do(t, http.MethodPost, "/v1/sessions", map[string]string{"uid": "player-1", "server_id": "eu-1"})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d, want %d", status, http.StatusCreated)
	}
	if created["uid"] != "player-1" || created["character_id"] != "alice" || created["server_id"] != "eu-1" {
		t.Fatalf("create response = %+v", created)
	}

	if status, _ := env.do(t, http.MethodPost, "/v1/sessions", map[string]string{"uid": "player-1"}); status != http.StatusConflict {
		t.Fatalf("duplicate create status = %d, want %d", status, http.StatusConflict)
	}

	status, got := env.do(t, http.MethodGet, "/v1/sessions/player-1", nil)
	if status != http.StatusOK || got["scene_id"] != "workspaces/demo/scenes/lobby" {
		t.Fatalf("get = %d %+v", status, got)
	}

	status, tok := env.do(t, http.MethodPost, "/v1/sessions/player-1/token", nil)
	if status != http.StatusOK || tok["session_id"] == nil {
		t.Fatalf("token = %d %+v", status, tok)
	}

	if status, _ := env.do(t, http.MethodDelete, "/v1/sessions/player-1", nil); status != http.StatusOK {
		t.Fatalf("delete status = %d, want %d", status, http.StatusOK)
	}
	if status, _ := env.do(t, http.MethodGet, "/v1/sessions/player-1", nil); status != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", status, http.StatusNotFound)
	}
}

func TestSendTextAndFlush(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/sessions", map[string]string{"uid": "p1"})

	status, sent := env.do(t, http.MethodPost, "/v1/sessions/p1/text", map[string]string{"message": "hello"})
	if status != http.StatusOK || sent["sent"] != true {
		t.Fatalf("text = %d %+v", status, sent)
	}

	var evs []any
	deadline := time.Now().Add(2 * time.Second)
	for len(evs) < 5 && time.Now().Before(deadline) {
		_, flushed := env.do(t, http.MethodPost, "/v1/sessions/p1/flush", nil)
		batch, _ := flushed["events"].([]any)
		evs = append(evs, batch...)
		time.Sleep(10 * time.Millisecond)
	}
	if len(evs) != 5 {
		t.Fatalf("flushed %d events, want 5: %+v", len(evs), evs)
	}
	first, _ := evs[0].(map[string]any)
	if first["type"] != "text" || first["text"] != "hello" || first["source"] != nil {
		t.Fatalf("events[0] = %+v, want player final", first)
	}
	reply, _ := evs[3].(map[string]any)
	if reply["source"] != "Character(Alice)" || reply["final"] != true || reply["u"] == "" {
		t.Fatalf("events[3] = %+v, want character final", reply)
	}
	emotion, _ := evs[4].(map[string]any)
	if emotion["type"] != "emotion" || emotion["behavior"] != "Interest" || emotion["strength"] != "Weak" {
		t.Fatalf("events[4] = %+v", emotion)
	}

	if status, _ := env.do(t, http.MethodPost, "/v1/sessions/p1/text", map[string]string{"message": " "}); status != http.StatusBadRequest {
		t.Fatalf("empty text status = %d, want %d", status, http.StatusBadRequest)
	}
	if status, _ := env.do(t, http.MethodPost, "/v1/sessions/p1/custom", map[string]string{"id": "no spaces allowed"}); status != http.StatusBadRequest {
		t.Fatalf("bad trigger status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestCharacterRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/sessions", map[string]string{"uid": "p1"})

	// Nothing has been sent yet, but the connection exists and opens on demand.
	status, list := env.do(t, http.MethodGet, "/v1/sessions/p1/characters", nil)
	chars, _ := list["characters"].([]any)
	if status != http.StatusOK || len(chars) != 2 {
		t.Fatalf("characters = %d %+v", status, list)
	}

	status, ch := env.do(t, http.MethodPut, "/v1/sessions/p1/character", map[string]string{"character_id": "bob"})
	if status != http.StatusOK || ch["id"] != "bob" {
		t.Fatalf("set character = %d %+v", status, ch)
	}
	_, cur := env.do(t, http.MethodGet, "/v1/sessions/p1/character", nil)
	if cur["id"] != "bob" {
		t.Fatalf("current = %+v, want bob", cur)
	}

	_, unknown := env.do(t, http.MethodPut, "/v1/sessions/p1/character", map[string]string{"character_id": "nobody"})
	if unknown["id"] != "bob" {
		t.Fatalf("unknown character = %+v, want current bob", unknown)
	}
}

func TestTranscriptRoute(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/sessions", map[string]string{"uid": "p1"})
	env.do(t, http.MethodPost, "/v1/sessions/p1/text", map[string]string{"message": "my email is sam@example.com"})

	var lines []any
	deadline := time.Now().Add(2 * time.Second)
	for len(lines) < 2 && time.Now().Before(deadline) {
		_, body := env.do(t, http.MethodGet, "/v1/sessions/p1/transcript?limit=10", nil)
		lines, _ = body["lines"].([]any)
		time.Sleep(10 * time.Millisecond)
	}
	if len(lines) != 2 {
		t.Fatalf("transcript lines = %+v, want 2", lines)
	}
	for _, raw := range lines {
		line, _ := raw.(map[string]any)
		if text, _ := line["text"].(string); strings.Contains(text, "sam@example.com") {
			t.Fatalf("transcript not redacted: %q", text)
		}
	}

	if status, _ := env.do(t, http.MethodGet, "/v1/sessions/p1/transcript?limit=abc", nil); status != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want %d", status, http.StatusBadRequest)
	}
}

func TestSessionWebSocket(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/sessions", map[string]string{"uid": "p1"})

	wsURL := "ws" + strings.TrimPrefix(env.api.URL, "http") + "/v1/sessions/p1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(protocol.SendText{Type: protocol.TypeSendText, Message: "hi"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if err := conn.WriteJSON(map[string]string{"type": "dance"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var gotAck, gotError, gotReply bool
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for !(gotAck && gotError && gotReply) {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v (ack=%v error=%v reply=%v)", err, gotAck, gotError, gotReply)
		}
		switch msg["type"] {
		case string(protocol.TypeAck):
			gotAck = msg["ok"] == true && msg["request"] == string(protocol.TypeSendText)
		case string(protocol.TypeErrorEvent):
			gotError = msg["code"] == "unsupported_type"
		case string(protocol.TypeEvents):
			evs, _ := msg["events"].([]any)
			for _, raw := range evs {
				ev, _ := raw.(map[string]any)
				if ev["final"] == true && ev["text"] == "I heard you: hi" {
					gotReply = true
				}
			}
		}
	}
}

func TestSessionWebSocketUnknownUID(t *testing.T) {
	env := newTestEnv(t)
	wsURL := "ws" + strings.TrimPrefix(env.api.URL, "http") + "/v1/sessions/ghost/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("Dial() succeeded for unknown uid")
	}
	if res == nil || res.StatusCode != http.StatusNotFound {
		t.Fatalf("response = %v, want 404", res)
	}
}

func TestPerfLatencyAndHealth(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/v1/sessions", map[string]string{"uid": "p1"})
	env.do(t, http.MethodPost, "/v1/sessions/p1/text", map[string]string{"message": "hello"})

	status, snap := env.do(t, http.MethodGet, "/v1/perf/latency", nil)
	if status != http.StatusOK {
		t.Fatalf("latency status = %d", status)
	}
	stages, _ := snap["stages"].([]any)
	if len(stages) == 0 {
		t.Fatalf("latency stages empty: %+v", snap)
	}

	status, ready := env.do(t, http.MethodGet, "/readyz", nil)
	if status != http.StatusOK || ready["active_connectors"] != float64(1) {
		t.Fatalf("readyz = %d %+v", status, ready)
	}
	if status, _ := env.do(t, http.MethodGet, "/healthz", nil); status != http.StatusOK {
		t.Fatalf("healthz status = %d", status)
	}
}
