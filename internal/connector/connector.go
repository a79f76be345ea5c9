// Package connector composes a session handle, the packet classifier and an
// event queue into the unit a host drains.
package connector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/charlink/internal/events"
	"github.com/ent0n29/charlink/internal/inworld"
	"github.com/ent0n29/charlink/internal/observability"
	"github.com/ent0n29/charlink/internal/protocol"
	"github.com/ent0n29/charlink/internal/session"
	"github.com/ent0n29/charlink/internal/transcript"
)

type Options struct {
	Key        string
	Secret     string
	UID        string
	Scene      string
	Character  string
	PlayerName string
	ServerID   string

	Connection inworld.ConnectionConfig

	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	Recorder *transcript.Recorder

	OnDisconnect func()
	OnError      func(error)

	// Provider replaces the inworld client; packets must then be fed to
	// HandlePacket by the caller.
	Provider session.Provider
}

// Connector owns one player's session and the queue its packets land in.
// Packets are classified on the provider's read goroutine; the host drains
// with FlushQueue on its own schedule.
type Connector struct {
	client   *session.Handle
	queue    *events.Queue
	logger   zerolog.Logger
	metrics  *observability.Metrics
	recorder *transcript.Recorder

	onDisconnect func()
	onError      func(error)

	closeOnce sync.Once
}

func New(opts Options) *Connector {
	c := &Connector{
		queue:        events.NewQueue(),
		metrics:      opts.Metrics,
		recorder:     opts.Recorder,
		onDisconnect: opts.OnDisconnect,
		onError:      opts.OnError,
	}
	c.queue.SetDrainHook(c.metrics.ObserveFlush)

	cfg := inworld.ClientConfiguration{
		Capabilities: inworld.Capabilities{Audio: true, Emotions: true},
		Connection:   opts.Connection,
	}
	c.client = session.New(session.Options{
		Key:          opts.Key,
		Secret:       opts.Secret,
		UID:          opts.UID,
		Scene:        opts.Scene,
		Character:    opts.Character,
		PlayerName:   opts.PlayerName,
		ServerID:     opts.ServerID,
		Config:       &cfg,
		OnMessage:    c.HandlePacket,
		OnDisconnect: c.handleDisconnect,
		OnError:      c.handleError,
		Provider:     opts.Provider,
	})
	c.logger = opts.Logger.With().Str("uid", c.client.UID()).Logger()

	c.client.Connection()
	c.metrics.ObserveSessionEvent("created")
	c.logger.Info().Str("scene", c.client.SceneID()).Str("character", c.client.CharacterID()).Msg("connector ready")
	return c
}

// HandlePacket classifies one provider packet and queues the result. It must
// not be called concurrently for the same connector.
func (c *Connector) HandlePacket(p protocol.Packet) {
	if p.IsText() {
		c.metrics.ObservePacket(string(events.KindText))
		if p.Routing.Source.IsPlayer && !p.Text.Final {
			c.metrics.ObserveDroppedPartial()
		}
	}
	if p.IsEmotion() {
		c.metrics.ObservePacket(string(events.KindEmotion))
	}
	if p.IsCustom() {
		c.metrics.ObservePacket(string(events.KindCustom))
	}

	evs := events.Classify(p)
	if len(evs) == 0 {
		return
	}
	var sp transcript.Speaker
	if c.recorder != nil {
		sessionID, _ := c.client.SessionID()
		sp = transcript.Speaker{UID: c.client.UID(), SessionID: sessionID, CharacterID: c.client.CharacterID()}
	}
	for _, ev := range evs {
		c.queue.Push(ev)
		c.metrics.ObserveEvent(string(ev.Kind()))
		if c.recorder != nil {
			c.recorder.Observe(sp, ev)
		}
	}
}

// FlushQueue returns every event received since the previous flush.
func (c *Connector) FlushQueue() []events.Event {
	return c.queue.Drain()
}

// Pending reports how many events are waiting to be flushed.
func (c *Connector) Pending() int {
	return c.queue.Len()
}

func (c *Connector) Client() *session.Handle {
	return c.client
}

func (c *Connector) Connection() session.Connection {
	return c.client.Connection()
}

func (c *Connector) UID() string         { return c.client.UID() }
func (c *Connector) CharacterID() string { return c.client.CharacterID() }

func (c *Connector) SessionID() (string, bool) { return c.client.SessionID() }
func (c *Connector) ServerID() (string, bool)  { return c.client.ServerID() }

func (c *Connector) SendText(ctx context.Context, message string) bool {
	start := time.Now()
	ok := c.client.SendText(ctx, message)
	c.metrics.ObserveSend(observability.StageSendText, time.Since(start))
	return ok
}

func (c *Connector) SendCustom(ctx context.Context, id string) bool {
	start := time.Now()
	ok := c.client.SendCustom(ctx, id)
	c.metrics.ObserveSend(observability.StageSendCustom, time.Since(start))
	return ok
}

func (c *Connector) SetCharacter(ctx context.Context, id string) (inworld.Character, bool) {
	start := time.Now()
	ch, ok := c.client.SetCharacter(ctx, id)
	c.metrics.ObserveSend(observability.StageSetCharacter, time.Since(start))
	return ch, ok
}

// Close ends the session. Events already queued can still be flushed.
func (c *Connector) Close() {
	c.closeOnce.Do(func() {
		c.client.CloseConnection()
		c.metrics.ObserveSessionEvent("closed")
		c.logger.Info().Msg("connector closed")
	})
}

func (c *Connector) handleDisconnect() {
	c.logger.Warn().Str("character", c.client.CharacterID()).Msg("inworld disconnected")
	c.metrics.ObserveIndicator("provider_disconnect")
	if c.onDisconnect != nil {
		c.onDisconnect()
	}
}

func (c *Connector) handleError(err error) {
	code := "unknown"
	var apiErr *inworld.Error
	if errors.As(err, &apiErr) && apiErr.Code != "" {
		code = apiErr.Code
	} else if errors.Is(err, inworld.ErrConnectionClosed) {
		code = "connection_closed"
	} else if errors.Is(err, inworld.ErrDisconnected) {
		code = "disconnected"
	}
	c.metrics.ObserveProviderError(code)
	c.logger.Error().Err(err).Str("code", code).Msg("inworld error")
	if c.onError != nil {
		c.onError(err)
	}
}
