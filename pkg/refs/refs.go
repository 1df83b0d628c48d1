// Package refs implements mutable convenience refs: human names pointing at
// node ids. Refs are mutable; the manifests and objects they point at remain
// append-only.
package refs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/epistemiclabs/ledger/pkg/canon"
)

// ErrNotFound is returned when resolving a ref that does not exist.
var ErrNotFound = errors.New("ref not found")

// Dir returns <root>/ledger/refs.
func Dir(repoRoot string) string {
	return filepath.Join(repoRoot, "ledger", "refs")
}

// Path returns the file for a named ref.
func Path(repoRoot, name string) string {
	return filepath.Join(Dir(repoRoot), name)
}

// Set points name at a node id. The file holds the bare 64-hex id plus a
// trailing newline.
func Set(repoRoot, name, nodeID string) error {
	id := strings.TrimSpace(nodeID)
	if !canon.IsHex64(id) {
		return fmt.Errorf("refs: invalid node id %q (expected 64-hex)", nodeID)
	}
	p := Path(repoRoot, name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("refs: mkdir: %w", err)
	}
	return os.WriteFile(p, []byte(id+"\n"), 0o644)
}

// Get resolves a named ref to its node id.
func Get(repoRoot, name string) (string, error) {
	raw, err := os.ReadFile(Path(repoRoot, name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("refs: read %s: %w", name, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// List returns all ref names in sorted order. An absent refs directory is an
// empty ledger, not an error.
func List(repoRoot string) ([]string, error) {
	entries, err := os.ReadDir(Dir(repoRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("refs: list: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
