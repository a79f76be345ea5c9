package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/charlink/internal/events"
	"github.com/ent0n29/charlink/internal/policy"
)

const (
	defaultQueueSize = 256
	saveTimeout      = 5 * time.Second
	maxOpenChunks    = 1024
)

// Speaker context for the lines a connector observes.
type Speaker struct {
	UID         string
	SessionID   string
	CharacterID string
}

// Recorder writes transcript lines on a single background worker. Record and
// Observe never block: when the queue is full the line is dropped.
type Recorder struct {
	store  Store
	logger zerolog.Logger
	ch     chan Line
	done   chan struct{}

	mu     sync.Mutex
	chunks map[string]string
	onDrop func()
	closed bool
}

func NewRecorder(store Store, queueSize int, logger zerolog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	r := &Recorder{
		store:  store,
		logger: logger,
		ch:     make(chan Line, queueSize),
		done:   make(chan struct{}),
		chunks: make(map[string]string),
	}
	go r.run()
	return r
}

func (r *Recorder) SetDropHook(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDrop = fn
}

// Observe turns a classified event into a transcript line. Character chunks
// are stitched by utterance id and written once the final chunk arrives.
func (r *Recorder) Observe(sp Speaker, ev events.Event) {
	text, ok := ev.(events.Text)
	if !ok {
		return
	}
	if text.Source == nil {
		// Player lines reach the classifier output only when final.
		r.Record(Line{UID: sp.UID, SessionID: sp.SessionID, CharacterID: sp.CharacterID, Speaker: events.Actor{Kind: events.ActorPlayer}.String(), Text: text.Text})
		return
	}

	key := sp.UID + "/" + text.UtteranceID
	r.mu.Lock()
	if !text.Final {
		if len(r.chunks) >= maxOpenChunks {
			r.chunks = make(map[string]string)
		}
		r.chunks[key] = text.Text
		r.mu.Unlock()
		return
	}
	last := r.chunks[key]
	delete(r.chunks, key)
	r.mu.Unlock()

	body := text.Text
	if body == "" {
		body = last
	}
	r.Record(Line{
		UID:         sp.UID,
		SessionID:   sp.SessionID,
		CharacterID: sp.CharacterID,
		Speaker:     text.Source.String(),
		UtteranceID: text.UtteranceID,
		Text:        body,
	})
}

// Record queues a line for storage and reports whether it was accepted.
func (r *Recorder) Record(line Line) bool {
	if line.Text == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.ch <- line:
		return true
	default:
		if r.onDrop != nil {
			r.onDrop()
		}
		r.logger.Warn().Str("uid", line.UID).Msg("transcript queue full, dropping line")
		return false
	}
}

// Close stops accepting lines and waits for queued ones to be written.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for line := range r.ch {
		line.Text, line.PIIRedacted = policy.RedactPII(line.Text)
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := r.store.Save(ctx, line); err != nil {
			r.logger.Error().Err(err).Str("uid", line.UID).Msg("transcript save failed")
		}
		cancel()
	}
}
