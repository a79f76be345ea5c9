// Package inworld is the client for the remote character service: it
// exchanges API credentials for a session token and maintains the websocket
// connection that packets arrive on.
package inworld

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/charlink/internal/protocol"
	"github.com/ent0n29/charlink/internal/reliability"
)

const (
	defaultGatewayURL      = "wss://api.inworld.ai/v1/session"
	defaultTokenURL        = "https://api.inworld.ai/v1/token"
	defaultDialTimeout     = 5 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultMaxDialAttempts = 3
)

type APIKey struct {
	Key    string
	Secret string
}

type User struct {
	ID       string
	FullName string
}

type Capabilities struct {
	Audio    bool
	Emotions bool
}

type ConnectionConfig struct {
	GatewayURL      string
	TokenURL        string
	DialTimeout     time.Duration
	RequestTimeout  time.Duration
	MaxDialAttempts int
}

type ClientConfiguration struct {
	Capabilities Capabilities
	Connection   ConnectionConfig
}

type Character = protocol.Character

// SessionToken authorizes one gateway session.
type SessionToken struct {
	Token          string
	Type           string
	ExpirationTime time.Time
	SessionID      string
}

func (t SessionToken) Expired(now time.Time) bool {
	if t.Token == "" {
		return true
	}
	if t.ExpirationTime.IsZero() {
		return false
	}
	// Leave headroom for the dial and handshake.
	return now.Add(30 * time.Second).After(t.ExpirationTime)
}

// Client is a builder: configure it, then Build a Connection. Build does no
// network I/O.
type Client struct {
	mu        sync.Mutex
	apiKey    APIKey
	config    ClientConfiguration
	scene     string
	character string
	user      User
	token     SessionToken

	onError      func(error)
	onDisconnect func()
	onMessage    func(protocol.Packet)

	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		config:     ClientConfiguration{Connection: normalizeConnectionConfig(ConnectionConfig{})},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) SetAPIKey(key APIKey) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = APIKey{Key: strings.TrimSpace(key.Key), Secret: strings.TrimSpace(key.Secret)}
	return c
}

func (c *Client) SetConfiguration(cfg ClientConfiguration) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg.Connection = normalizeConnectionConfig(cfg.Connection)
	c.config = cfg
	return c
}

func (c *Client) SetScene(scene string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scene = strings.TrimSpace(scene)
	return c
}

// SetCharacter selects the character the session opens with.
func (c *Client) SetCharacter(id string) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.character = strings.TrimSpace(id)
	return c
}

func (c *Client) SetUser(u User) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = u
	return c
}

func (c *Client) SetOnError(fn func(error)) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
	return c
}

func (c *Client) SetOnDisconnect(fn func()) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
	return c
}

func (c *Client) SetOnMessage(fn func(protocol.Packet)) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = fn
	return c
}

func (c *Client) SetHTTPClient(hc *http.Client) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hc != nil {
		c.httpClient = hc
	}
	return c
}

// Build returns an unopened connection. It opens on first use.
func (c *Client) Build() *Connection {
	return newConnection(c)
}

// GenerateSessionToken exchanges the API key for a session token and caches
// it for the next connection open.
func (c *Client) GenerateSessionToken(ctx context.Context) (SessionToken, error) {
	c.mu.Lock()
	key := c.apiKey
	scene := c.scene
	tokenURL := c.config.Connection.TokenURL
	hc := c.httpClient
	c.mu.Unlock()

	if key.Key == "" || key.Secret == "" {
		return SessionToken{}, &Error{Op: "token", Code: "unauthenticated", Message: "api key and secret are required"}
	}

	payload, err := json.Marshal(protocol.TokenRequest{Scene: scene})
	if err != nil {
		return SessionToken{}, fmt.Errorf("marshal token request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return SessionToken{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(key.Key, key.Secret)

	res, err := hc.Do(req)
	if err != nil {
		return SessionToken{}, fmt.Errorf("send token request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return SessionToken{}, &Error{
			Op:        "token",
			Code:      "http_error",
			Message:   strings.TrimSpace(string(body)),
			Status:    res.StatusCode,
			Retryable: reliability.IsRetryableHTTPStatus(res.StatusCode),
		}
	}

	var out protocol.TokenResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return SessionToken{}, fmt.Errorf("decode token response: %w", err)
	}
	if strings.TrimSpace(out.Token) == "" {
		return SessionToken{}, &Error{Op: "token", Code: "invalid_response", Message: "token missing from response"}
	}

	tok := SessionToken{
		Token:     out.Token,
		Type:      out.Type,
		SessionID: out.SessionID,
	}
	if out.ExpirationTime != "" {
		if ts, err := time.Parse(time.RFC3339, out.ExpirationTime); err == nil {
			tok.ExpirationTime = ts
		}
	}

	c.mu.Lock()
	c.token = tok
	c.mu.Unlock()
	return tok, nil
}

// sessionToken returns the cached token, refreshing it when expired.
func (c *Client) sessionToken(ctx context.Context) (SessionToken, error) {
	c.mu.Lock()
	tok := c.token
	c.mu.Unlock()
	if !tok.Expired(time.Now()) {
		return tok, nil
	}
	return c.GenerateSessionToken(ctx)
}

func (c *Client) snapshot() (ClientConfiguration, string, string, User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config, c.scene, c.character, c.user
}

func (c *Client) reportError(err error) {
	c.mu.Lock()
	fn := c.onError
	c.mu.Unlock()
	if fn != nil && err != nil {
		fn(err)
	}
}

func (c *Client) notifyDisconnect() {
	c.mu.Lock()
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) deliver(p protocol.Packet) {
	c.mu.Lock()
	fn := c.onMessage
	c.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func normalizeConnectionConfig(cfg ConnectionConfig) ConnectionConfig {
	if strings.TrimSpace(cfg.GatewayURL) == "" {
		cfg.GatewayURL = defaultGatewayURL
	}
	if strings.TrimSpace(cfg.TokenURL) == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxDialAttempts <= 0 {
		cfg.MaxDialAttempts = defaultMaxDialAttempts
	}
	return cfg
}
