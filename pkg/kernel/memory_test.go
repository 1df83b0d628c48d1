package kernel

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGet(t *testing.T) {
	m := NewMemoryStore()

	h, err := m.Put([]byte("input-data"), nil)
	require.NoError(t, err)
	assert.Len(t, h, 64)

	n, err := m.Get(h)
	require.NoError(t, err)
	assert.Equal(t, []byte("input-data"), n.Data)
	assert.Empty(t, n.Parents)
}

func TestMemoryStore_PutIdempotent(t *testing.T) {
	m := NewMemoryStore()

	first, err := m.Put([]byte("data"), []string{"aa"})
	require.NoError(t, err)
	second, err := m.Put([]byte("data"), []string{"aa"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, m.Len())
}

func TestMemoryStore_ParentsChangeDigest(t *testing.T) {
	m := NewMemoryStore()

	bare, err := m.Put([]byte("data"), nil)
	require.NoError(t, err)
	linked, err := m.Put([]byte("data"), []string{bare})
	require.NoError(t, err)

	assert.NotEqual(t, bare, linked)
	// Parent order is semantic.
	other, err := m.Put([]byte("more"), nil)
	require.NoError(t, err)
	ab, err := m.Put([]byte("data"), []string{bare, other})
	require.NoError(t, err)
	ba, err := m.Put([]byte("data"), []string{other, bare})
	require.NoError(t, err)
	assert.NotEqual(t, ab, ba)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.Get("deadbeef")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStore_PutProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("put is idempotent and deterministic", prop.ForAll(
		func(data []byte) bool {
			a := NewMemoryStore()
			b := NewMemoryStore()
			h1, err1 := a.Put(data, nil)
			h2, err2 := a.Put(data, nil)
			h3, err3 := b.Put(data, nil)
			return err1 == nil && err2 == nil && err3 == nil &&
				h1 == h2 && h1 == h3 && a.Len() == 1
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}
