package transcript

import (
	"context"
	"fmt"
	"strings"
)

// NewStore picks a backend from url: empty or "memory" keeps lines in
// process, postgres:// and postgresql:// use PostgreSQL, sqlite:// (or a
// path ending in .db) uses SQLite.
func NewStore(ctx context.Context, url string) (Store, error) {
	url = strings.TrimSpace(url)
	lower := strings.ToLower(url)
	switch {
	case url == "" || lower == "memory":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(lower, "sqlite://"):
		return NewSQLiteStore(ctx, url[len("sqlite://"):])
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"):
		return NewSQLiteStore(ctx, url)
	default:
		return nil, fmt.Errorf("unsupported transcript url %q", url)
	}
}
