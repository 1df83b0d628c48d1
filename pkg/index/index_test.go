package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistemiclabs/ledger/pkg/canon"
	"github.com/epistemiclabs/ledger/pkg/manifest"
)

func openTestIndex(t *testing.T) *Store {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndParents(t *testing.T) {
	s := openTestIndex(t)
	ctx := context.Background()

	a := canon.SHA256Hex([]byte("a"))
	b := canon.SHA256Hex([]byte("b"))
	c := canon.SHA256Hex([]byte("c"))

	require.NoError(t, s.InsertNode(ctx, a, nil))
	require.NoError(t, s.InsertNode(ctx, b, nil))
	require.NoError(t, s.InsertNode(ctx, c, []string{b, a}))

	parents, err := s.Parents(ctx, c)
	require.NoError(t, err)
	// Declared order, not sorted.
	assert.Equal(t, []string{b, a}, parents)

	has, err := s.Has(ctx, c)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.Has(ctx, canon.SHA256Hex([]byte("unknown")))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestInsertNode_Idempotent(t *testing.T) {
	s := openTestIndex(t)
	ctx := context.Background()

	a := canon.SHA256Hex([]byte("a"))
	b := canon.SHA256Hex([]byte("b"))
	require.NoError(t, s.InsertNode(ctx, a, []string{b}))
	// The mirrored manifest is immutable, so re-insertion is a no-op.
	require.NoError(t, s.InsertNode(ctx, a, []string{b}))

	parents, err := s.Parents(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, parents)
}

func TestReachable_Diamond(t *testing.T) {
	s := openTestIndex(t)
	ctx := context.Background()

	root := canon.SHA256Hex([]byte("root"))
	left := canon.SHA256Hex([]byte("left"))
	right := canon.SHA256Hex([]byte("right"))
	top := canon.SHA256Hex([]byte("top"))

	require.NoError(t, s.InsertNode(ctx, root, nil))
	require.NoError(t, s.InsertNode(ctx, left, []string{root}))
	require.NoError(t, s.InsertNode(ctx, right, []string{root}))
	require.NoError(t, s.InsertNode(ctx, top, []string{left, right}))

	closure, err := s.Reachable(ctx, top)
	require.NoError(t, err)
	// Memoized: root appears once despite two paths.
	assert.Len(t, closure, 4)
	assert.Equal(t, top, closure[0])
}

func TestRebuild_FromManifests(t *testing.T) {
	repo := t.TempDir()

	a := canon.SHA256Hex([]byte("a"))
	b := canon.SHA256Hex([]byte("b"))
	for _, n := range []manifest.Node{
		{ID: a, Transform: manifest.Transform{Name: "external", Digest: canon.SHA256Hex([]byte("external"))}},
		{ID: b, Parents: []string{a}, Transform: manifest.Transform{Name: "derive", Digest: canon.SHA256Hex([]byte("derive"))}},
	} {
		_, err := manifest.Write(repo, n)
		require.NoError(t, err)
	}
	// A stray non-manifest file is skipped, not an error.
	require.NoError(t, os.WriteFile(filepath.Join(repo, "ledger", "nodes", "README"), []byte("x"), 0o644))

	s := openTestIndex(t)
	n, err := s.Rebuild(context.Background(), repo)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	parents, err := s.Parents(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, parents)
}

func TestRebuild_EmptyRepo(t *testing.T) {
	s := openTestIndex(t)
	n, err := s.Rebuild(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInsertNode_BeginFailureSurfaced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS nodes").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin().WillReturnError(assert.AnError)

	s, err := NewSQLite(db)
	require.NoError(t, err)

	err = s.InsertNode(context.Background(), canon.SHA256Hex([]byte("a")), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index: begin")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateFailureSurfaced(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS nodes").
		WillReturnError(assert.AnError)

	_, err = NewSQLite(db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index: migrate")
}

func TestDollarPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", dollarPlaceholders(1))
	assert.Equal(t, "$1, $2, $3", dollarPlaceholders(3))
	assert.Equal(t, "?", questionPlaceholders(1))
	assert.Equal(t, "?, ?, ?", questionPlaceholders(3))
}
