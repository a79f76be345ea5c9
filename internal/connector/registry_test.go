package connector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newStubRegistry(timeout time.Duration) (*Registry, map[string]*stubProvider) {
	providers := make(map[string]*stubProvider)
	factory := func(req CreateRequest) *Connector {
		p := &stubProvider{conn: &stubConn{}}
		providers[req.UID] = p
		return New(Options{UID: req.UID, Character: req.Character, ServerID: req.ServerID, Logger: zerolog.Nop(), Provider: p})
	}
	return NewRegistry(factory, timeout, nil), providers
}

func TestRegistryCreateGetClose(t *testing.T) {
	r, providers := newStubRegistry(time.Minute)
	c, err := r.Create(CreateRequest{UID: "u1", Character: "alice"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.Create(CreateRequest{UID: "u1"}); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate Create() error = %v, want ErrExists", err)
	}

	got, err := r.Get("u1")
	if err != nil || got != c {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	info, err := r.Info("u1")
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.UID != "u1" || info.CharacterID != "alice" {
		t.Fatalf("Info() = %+v", info)
	}
	if r.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", r.ActiveCount())
	}

	if err := r.Close("u1"); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if providers["u1"].conn.closed != 1 {
		t.Fatalf("connection not closed")
	}
	if _, err := r.Get("u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after Close error = %v, want ErrNotFound", err)
	}
	if err := r.Close("u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Close() error = %v, want ErrNotFound", err)
	}
}

func TestRegistryGeneratesUID(t *testing.T) {
	r, _ := newStubRegistry(time.Minute)
	c, err := r.Create(CreateRequest{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.UID() == "" {
		t.Fatalf("UID() empty")
	}
	if _, err := r.Get(c.UID()); err != nil {
		t.Fatalf("Get(generated uid) error = %v", err)
	}
}

func TestRegistryExpiresInactive(t *testing.T) {
	r, providers := newStubRegistry(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if _, err := r.Create(CreateRequest{UID: "idle"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := r.Create(CreateRequest{UID: "busy"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	var expired []string
	r.SetExpireHook(func(c *Connector) { expired = append(expired, c.UID()) })

	now = now.Add(45 * time.Second)
	if err := r.Touch("busy"); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	now = now.Add(30 * time.Second)
	r.expireInactive()

	if len(expired) != 1 || expired[0] != "idle" {
		t.Fatalf("expired = %v, want [idle]", expired)
	}
	if providers["idle"].conn.closed != 1 {
		t.Fatalf("idle connector not closed")
	}
	if _, err := r.Get("busy"); err != nil {
		t.Fatalf("busy connector expired: %v", err)
	}
}

func TestRegistryJanitorRuns(t *testing.T) {
	r, _ := newStubRegistry(20 * time.Millisecond)
	if _, err := r.Create(CreateRequest{UID: "u1"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.StartJanitor(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for r.ActiveCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", r.ActiveCount())
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r, providers := newStubRegistry(time.Minute)
	for _, uid := range []string{"a", "b"} {
		if _, err := r.Create(CreateRequest{UID: uid}); err != nil {
			t.Fatalf("Create(%q) error = %v", uid, err)
		}
	}
	r.CloseAll()
	if r.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", r.ActiveCount())
	}
	for uid, p := range providers {
		if p.conn.closed != 1 {
			t.Fatalf("%s not closed", uid)
		}
	}
}
