package transcript

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"hello", "hi there", "how are you"} {
		if err := s.Save(ctx, Line{UID: "u1", Speaker: "Player", Text: text, CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := s.Save(ctx, Line{UID: "u2", Speaker: "Player", Text: "other"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := s.Recent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(Recent()) = %d, want 2", len(got))
	}
	if got[0].Text != "hi there" || got[1].Text != "how are you" {
		t.Fatalf("Recent() = %q, %q; want chronological tail", got[0].Text, got[1].Text)
	}
	if got[0].ID == "" {
		t.Fatalf("saved line has no ID")
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "transcripts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, "")
	if err != nil {
		t.Fatalf("NewStore(\"\") error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(\"\") = %T, want *InMemoryStore", s)
	}

	s, err = NewStore(ctx, "sqlite://"+filepath.Join(t.TempDir(), "t.db"))
	if err != nil {
		t.Fatalf("NewStore(sqlite) error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("NewStore(sqlite) = %T, want *SQLiteStore", s)
	}

	if _, err := NewStore(ctx, "mysql://x"); err == nil {
		t.Fatalf("NewStore(mysql) should fail")
	}
}
