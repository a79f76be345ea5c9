package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps transcripts in process for local/dev use.
type InMemoryStore struct {
	mu    sync.RWMutex
	lines map[string][]Line
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{lines: make(map[string][]Line)}
}

func (s *InMemoryStore) Save(_ context.Context, line Line) error {
	line = withDefaults(line)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines[line.UID] = append(s.lines[line.UID], line)
	return nil
}

func (s *InMemoryStore) Recent(_ context.Context, uid string, limit int) ([]Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.lines[uid]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Line, limit)
	copy(out, arr[len(arr)-limit:])
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func withDefaults(line Line) Line {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	return line
}
