package connector

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/charlink/internal/observability"
)

var (
	ErrNotFound = errors.New("connector not found")
	ErrExists   = errors.New("connector already exists")
)

// CreateRequest describes a connector for one player. Empty fields fall back
// to the server defaults.
type CreateRequest struct {
	UID        string `json:"uid"`
	Character  string `json:"character"`
	PlayerName string `json:"player_name"`
	ServerID   string `json:"server_id"`
}

// Factory builds a connector for a request whose UID is already set.
type Factory func(req CreateRequest) *Connector

type entry struct {
	connector      *Connector
	createdAt      time.Time
	lastActivityAt time.Time
}

// Info is a point-in-time view of a registered connector.
type Info struct {
	UID            string    `json:"uid"`
	CharacterID    string    `json:"character_id"`
	SceneID        string    `json:"scene_id"`
	SessionID      string    `json:"session_id,omitempty"`
	ServerID       string    `json:"server_id,omitempty"`
	Pending        int       `json:"pending_events"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// Registry maps player UIDs to live connectors and closes idle ones.
type Registry struct {
	mu                sync.RWMutex
	entries           map[string]*entry
	factory           Factory
	metrics           *observability.Metrics
	inactivityTimeout time.Duration
	onExpire          func(*Connector)
	now               func() time.Time
}

func NewRegistry(factory Factory, inactivityTimeout time.Duration, metrics *observability.Metrics) *Registry {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Registry{
		entries:           make(map[string]*entry),
		factory:           factory,
		metrics:           metrics,
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) SetExpireHook(hook func(*Connector)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onExpire = hook
}

func (r *Registry) Create(req CreateRequest) (*Connector, error) {
	req.UID = strings.TrimSpace(req.UID)
	if req.UID == "" {
		req.UID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[req.UID]; ok {
		return nil, ErrExists
	}
	c := r.factory(req)
	now := r.now()
	r.entries[req.UID] = &entry{connector: c, createdAt: now, lastActivityAt: now}
	r.metrics.SetActiveConnectors(len(r.entries))
	return c, nil
}

func (r *Registry) Get(uid string) (*Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return e.connector, nil
}

func (r *Registry) Info(uid string) (Info, error) {
	r.mu.RLock()
	e, ok := r.entries[uid]
	var created, last time.Time
	if ok {
		created, last = e.createdAt, e.lastActivityAt
	}
	r.mu.RUnlock()
	if !ok {
		return Info{}, ErrNotFound
	}
	c := e.connector
	h := c.Client()
	sessionID, _ := h.SessionID()
	serverID, _ := h.ServerID()
	return Info{
		UID:            h.UID(),
		CharacterID:    h.CharacterID(),
		SceneID:        h.SceneID(),
		SessionID:      sessionID,
		ServerID:       serverID,
		Pending:        c.Pending(),
		CreatedAt:      created,
		LastActivityAt: last,
	}, nil
}

// Touch marks the connector as used now.
func (r *Registry) Touch(uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[uid]
	if !ok {
		return ErrNotFound
	}
	e.lastActivityAt = r.now()
	return nil
}

// Close closes the connector and forgets it.
func (r *Registry) Close(uid string) error {
	r.mu.Lock()
	e, ok := r.entries[uid]
	if ok {
		delete(r.entries, uid)
		r.metrics.SetActiveConnectors(len(r.entries))
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	e.connector.Close()
	return nil
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := r.entries
	r.entries = make(map[string]*entry)
	r.metrics.SetActiveConnectors(0)
	r.mu.Unlock()
	for _, e := range all {
		e.connector.Close()
	}
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.expireInactive()
			}
		}
	}()
}

func (r *Registry) expireInactive() {
	now := r.now()
	var expired []*Connector

	r.mu.Lock()
	for uid, e := range r.entries {
		if now.Sub(e.lastActivityAt) < r.inactivityTimeout {
			continue
		}
		expired = append(expired, e.connector)
		delete(r.entries, uid)
	}
	if len(expired) > 0 {
		r.metrics.SetActiveConnectors(len(r.entries))
	}
	hook := r.onExpire
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
		if hook != nil {
			hook(c)
		}
	}
}
