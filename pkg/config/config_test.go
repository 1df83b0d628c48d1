package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	c, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, c.DefaultRunner)
	assert.Nil(t, c.SessionLock)
	assert.Empty(t, c.OTLPEndpoint)
}

func TestLoad_ParsesFields(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "ledger"), 0o755))
	require.NoError(t, os.WriteFile(Path(repo), []byte(`
default_runner: ["python3", "-I"]
session_lock: false
otlp_endpoint: "localhost:4317"
`), 0o644))

	c, err := Load(repo)
	require.NoError(t, err)
	assert.Equal(t, []string{"python3", "-I"}, c.DefaultRunner)
	require.NotNil(t, c.SessionLock)
	assert.False(t, *c.SessionLock)
	assert.Equal(t, "localhost:4317", c.OTLPEndpoint)
}

func TestLoad_MalformedIsError(t *testing.T) {
	repo := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "ledger"), 0o755))
	require.NoError(t, os.WriteFile(Path(repo), []byte("default_runner: [unterminated"), 0o644))

	_, err := Load(repo)
	assert.Error(t, err)
}
