package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// OpenPostgres opens (and migrates) a Postgres-backed index. Shared
// deployments point several read-only verifiers at one index while manifests
// stay on the repo filesystem.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open postgres: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("index: ping postgres: %w", err)
	}
	return NewPostgres(db)
}

// NewPostgres wraps an existing Postgres database handle.
func NewPostgres(db *sql.DB) (*Store, error) {
	s := &Store{db: db, placeholder: dollarPlaceholders}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func dollarPlaceholders(n int) string {
	out := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			out += ", "
		}
		out += fmt.Sprintf("$%d", i)
	}
	return out
}
