package events

import (
	"sync"
	"time"
)

type queued struct {
	ev Event
	at time.Time
}

// Queue buffers classified events until the host drains them. Push and Drain
// may run on different goroutines. The zero value is ready to use.
type Queue struct {
	mu      sync.Mutex
	items   []queued
	onDrain func(count int, oldestWait time.Duration)
	now     func() time.Time
}

func NewQueue() *Queue {
	return &Queue{now: time.Now}
}

// SetDrainHook registers an observer called after every non-empty drain with
// the batch size and how long its oldest event waited.
func (q *Queue) SetDrainHook(hook func(count int, oldestWait time.Duration)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onDrain = hook
}

func (q *Queue) Push(ev Event) {
	if ev == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, queued{ev: ev, at: q.clock()})
	q.mu.Unlock()
}

// Drain removes and returns everything pushed so far, in arrival order.
func (q *Queue) Drain() []Event {
	q.mu.Lock()
	items := q.items
	q.items = nil
	hook := q.onDrain
	now := q.clock()
	q.mu.Unlock()

	out := make([]Event, len(items))
	for i, it := range items {
		out[i] = it.ev
	}
	if hook != nil && len(items) > 0 {
		hook(len(items), now.Sub(items[0].at))
	}
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) clock() time.Time {
	if q.now == nil {
		return time.Now()
	}
	return q.now()
}
