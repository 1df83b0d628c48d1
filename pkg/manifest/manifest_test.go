package manifest

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idA = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	idB = "486ea46224d1bb4fb680f34f7c9ad96a8f24ec88be73ea8e5a6c65260e9cb8a7"
	idT = "a948904f2f0f479b8f8197694b30184b0d2ed1c1cd2a1ec0fb85d299a192a447"
)

func sampleNode() Node {
	return Node{
		ID:      idT,
		Parents: []string{idA, idB},
		Transform: Transform{
			Name:   "concat_parents",
			Digest: idA,
			Params: map[string]interface{}{"suffix": "!"},
			Runner: []string{"python3"},
		},
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	repo := t.TempDir()

	p, err := Write(repo, sampleNode())
	require.NoError(t, err)
	assert.Equal(t, Path(repo, idT), p)

	m, err := Read(repo, idT)
	require.NoError(t, err)
	assert.Equal(t, idT, m["id"])
	assert.Equal(t, []interface{}{idA, idB}, m["parents"])

	tr := m["transform"].(map[string]interface{})
	assert.Equal(t, "concat_parents", tr["name"])
	assert.Equal(t, []interface{}{"python3"}, tr["runner"])
	assert.Equal(t, map[string]interface{}{"suffix": "!"}, tr["params"])
}

func TestWrite_AppendOnly(t *testing.T) {
	repo := t.TempDir()

	_, err := Write(repo, sampleNode())
	require.NoError(t, err)

	_, err = Write(repo, sampleNode())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyExists))

	// The first write is untouched.
	m, err := Read(repo, idT)
	require.NoError(t, err)
	assert.Equal(t, idT, m["id"])
}

func TestWrite_OnDiskForm(t *testing.T) {
	repo := t.TempDir()
	n := sampleNode()
	n.Parents = nil
	n.Transform.Runner = nil

	p, err := Write(repo, n)
	require.NoError(t, err)

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	s := string(raw)

	// Sorted keys, 2-space indentation, trailing newline.
	assert.True(t, strings.HasSuffix(s, "}\n"))
	assert.True(t, strings.HasPrefix(s, "{\n  \"id\": "))
	assert.Contains(t, s, "\"parents\": []")
	// Optional fields are written only when present.
	assert.NotContains(t, s, "runner")
	assert.NotContains(t, s, "env_digest")
	assert.NotContains(t, s, "meta")

	// The on-disk form passes the pinned schema.
	assert.NoError(t, ValidateBytes(raw))
}

func TestWrite_OptionalFields(t *testing.T) {
	repo := t.TempDir()
	n := sampleNode()
	n.Transform.EnvDigest = idB
	n.Meta = map[string]interface{}{"note": "external drop"}

	p, err := Write(repo, n)
	require.NoError(t, err)

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"env_digest\": \""+idB+"\"")
	assert.Contains(t, string(raw), "\"note\": \"external drop\"")
	assert.NoError(t, ValidateBytes(raw))
}

func TestRead_UnknownKeysPreserved(t *testing.T) {
	repo := t.TempDir()
	p := Path(repo, idA)
	require.NoError(t, os.MkdirAll(strings.TrimSuffix(p, idA+".json"), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(`{"id":"`+idA+`","parents":[],"transform":{"name":"x","digest":"`+idB+`","params":{}},"x_extension":42}`), 0o644))

	m, err := Read(repo, idA)
	require.NoError(t, err)
	assert.Contains(t, m, "x_extension")
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(t.TempDir(), idA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDecodeRunner(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		argv    []string
		ok      bool
		wantErr bool
	}{
		{"absent", nil, nil, false, false},
		{"single string", "python3", []string{"python3"}, true, false},
		{"list", []interface{}{"python3", "-I"}, []string{"python3", "-I"}, true, false},
		{"empty string", "", nil, false, true},
		{"empty list", []interface{}{}, nil, false, true},
		{"non-string element", []interface{}{"python3", 7}, nil, false, true},
		{"wrong type", 42, nil, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argv, ok, err := DecodeRunner(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.argv, argv)
		})
	}
}

func TestWrite_RejectsMalformedNode(t *testing.T) {
	repo := t.TempDir()
	n := sampleNode()
	n.Transform.Digest = "not-a-digest"

	_, err := Write(repo, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema validation")

	// Nothing was written.
	assert.False(t, Exists(repo, n.ID))
}

func TestValidateBytes_Rejects(t *testing.T) {
	// Uppercase hex fails the digest pattern.
	bad := `{"id":"` + strings.ToUpper(idA) + `","parents":[],"transform":{"name":"x","digest":"` + idB + `","params":{}}}`
	assert.Error(t, ValidateBytes([]byte(bad)))

	// Missing transform.
	assert.Error(t, ValidateBytes([]byte(`{"id":"`+idA+`","parents":[]}`)))

	// Not JSON at all.
	assert.Error(t, ValidateBytes([]byte("not json")))
}

func TestSchemaPin(t *testing.T) {
	assert.Len(t, SchemaSHA256(), 64)
}
