package kernel

import (
	"errors"
	"fmt"

	"github.com/epistemiclabs/ledger/pkg/canon"
)

// ErrNotFound is returned by Get for an unknown digest.
var ErrNotFound = errors.New("memnode not found")

// MemNode is one vertex of the content-addressed memory DAG: opaque data
// plus ordered parent digests.
type MemNode struct {
	Data    []byte
	Parents []string
}

// MemoryStore is the in-memory node store. Iteration order is not part of
// the contract. It is not inherently thread-safe; external coordination is
// the embedder's responsibility.
type MemoryStore struct {
	store map[string]MemNode
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{store: make(map[string]MemNode)}
}

// Put records data with its ordered parents and returns the node digest:
// sha256(canonical({"data_sha256": sha256(data), "parents": [...]})).
// Idempotent: re-putting identical inputs returns the same digest without
// creating a duplicate entry.
func (m *MemoryStore) Put(data []byte, parents []string) (string, error) {
	ps := parents
	if ps == nil {
		ps = []string{}
	}
	h, err := canon.CanonicalHash(map[string]interface{}{
		"data_sha256": canon.SHA256Hex(data),
		"parents":     ps,
	})
	if err != nil {
		return "", fmt.Errorf("kernel: put: %w", err)
	}

	if _, exists := m.store[h]; !exists {
		m.store[h] = MemNode{Data: data, Parents: append([]string(nil), parents...)}
	}
	return h, nil
}

// Get returns the stored node for h.
func (m *MemoryStore) Get(h string) (MemNode, error) {
	n, exists := m.store[h]
	if !exists {
		return MemNode{}, fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	return n, nil
}

// Has reports whether h is stored.
func (m *MemoryStore) Has(h string) bool {
	_, exists := m.store[h]
	return exists
}

// Len returns the number of stored nodes.
func (m *MemoryStore) Len() int {
	return len(m.store)
}
