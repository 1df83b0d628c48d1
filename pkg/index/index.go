// Package index maintains a queryable mirror of the manifest DAG.
//
// The index is derived state: the manifests under ledger/nodes/ remain the
// source of truth, and Rebuild reconstructs the index from them at any time.
// Two backends share one schema — SQLite for single-host repos, Postgres for
// shared deployments.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/epistemiclabs/ledger/pkg/canon"
	"github.com/epistemiclabs/ledger/pkg/manifest"
)

// Store is a node index over one of the SQL backends.
type Store struct {
	db          *sql.DB
	placeholder func(n int) string
}

// DefaultPath returns <root>/ledger/index.db.
func DefaultPath(repoRoot string) string {
	return filepath.Join(repoRoot, "ledger", "index.db")
}

// OpenSQLite opens (and migrates) a SQLite-backed index at path.
func OpenSQLite(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("index: mkdir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open sqlite: %w", err)
	}
	s := &Store{db: db, placeholder: questionPlaceholders}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an existing SQLite database handle.
func NewSQLite(db *sql.DB) (*Store, error) {
	s := &Store{db: db, placeholder: questionPlaceholders}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS nodes (
		node_id TEXT PRIMARY KEY,
		parent_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS parents (
		node_id TEXT NOT NULL,
		ordinal INTEGER NOT NULL,
		parent_id TEXT NOT NULL,
		PRIMARY KEY (node_id, ordinal)
	);
	CREATE INDEX IF NOT EXISTS parents_by_parent ON parents (parent_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("index: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertNode records a node and its ordered parents. Re-inserting the same
// id is a no-op: the manifest it mirrors is immutable.
func (s *Store) InsertNode(ctx context.Context, nodeID string, parents []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO nodes (node_id, parent_count) VALUES ("+s.placeholder(2)+") ON CONFLICT (node_id) DO NOTHING",
		nodeID, len(parents))
	if err != nil {
		return fmt.Errorf("index: insert node: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	for i, p := range parents {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO parents (node_id, ordinal, parent_id) VALUES ("+s.placeholder(3)+")",
			nodeID, i, p); err != nil {
			return fmt.Errorf("index: insert parent: %w", err)
		}
	}
	return tx.Commit()
}

// Parents returns the ordered parent ids of nodeID.
func (s *Store) Parents(ctx context.Context, nodeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT parent_id FROM parents WHERE node_id = "+s.placeholder(1)+" ORDER BY ordinal",
		nodeID)
	if err != nil {
		return nil, fmt.Errorf("index: parents: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("index: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Has reports whether nodeID is indexed.
func (s *Store) Has(ctx context.Context, nodeID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM nodes WHERE node_id = "+s.placeholder(1), nodeID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("index: has: %w", err)
	}
	return true, nil
}

// Reachable returns the ancestor closure of rootID (root included), memoized
// by id so diamond DAGs stay linear.
func (s *Store) Reachable(ctx context.Context, rootID string) ([]string, error) {
	seen := map[string]bool{}
	var order []string
	stack := []string{rootID}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		order = append(order, id)

		parents, err := s.Parents(ctx, id)
		if err != nil {
			return nil, err
		}
		stack = append(stack, parents...)
	}
	return order, nil
}

// Rebuild drops nothing and re-inserts every manifest under ledger/nodes/.
// Safe to run at any time: manifests are immutable, so an indexed node never
// changes.
func (s *Store) Rebuild(ctx context.Context, repoRoot string) (int, error) {
	nodesDir := filepath.Join(repoRoot, "ledger", "nodes")
	entries, err := os.ReadDir(nodesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("index: rebuild: %w", err)
	}

	count := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		if !canon.IsHex64(id) {
			continue
		}

		m, err := manifest.Read(repoRoot, id)
		if err != nil {
			return count, err
		}
		var parents []string
		if list, isList := m["parents"].([]interface{}); isList {
			for _, raw := range list {
				if p, isStr := raw.(string); isStr && canon.IsHex64(p) {
					parents = append(parents, p)
				}
			}
		}
		if err := s.InsertNode(ctx, id, parents); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func questionPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
