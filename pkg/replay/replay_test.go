package replay

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epistemiclabs/ledger/pkg/canon"
	"github.com/epistemiclabs/ledger/pkg/cas"
	"github.com/epistemiclabs/ledger/pkg/manifest"
)

// concatTransform concatenates the ordered parents and appends the optional
// params.suffix — the interface is the point, not the operation. Written in
// shell so the suite needs no language toolchain; parent files sort in
// declared order thanks to the zero-padded index prefix.
const concatTransform = `#!/bin/sh
set -e
dir=""; out=""; params=""
while [ $# -gt 0 ]; do
  case "$1" in
    --parents-dir) dir="$2"; shift 2 ;;
    --params-path) params="$2"; shift 2 ;;
    --out) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
cat "$dir"/* > "$out"
suffix=$(sed -n 's/.*"suffix":"\([^"]*\)".*/\1/p' "$params")
printf '%s' "$suffix" >> "$out"
`

var shRunner = []string{"/bin/sh"}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

// storeBytes puts content into the CAS and returns its digest.
func storeBytes(t *testing.T, repo string, content []byte) string {
	t.Helper()
	tmp := filepath.Join(t.TempDir(), "blob")
	require.NoError(t, os.WriteFile(tmp, content, 0o644))

	digest := canon.SHA256Hex(content)
	_, err := cas.StoreBlob(tmp, cas.FromRepoRoot(repo), digest)
	require.NoError(t, err)
	return digest
}

// admit stores content and writes an admission manifest for it.
func admit(t *testing.T, repo string, content []byte) string {
	t.Helper()
	id := storeBytes(t, repo, content)
	_, err := manifest.Write(repo, manifest.Node{
		ID: id,
		Transform: manifest.Transform{
			Name:   "external",
			Digest: canon.SHA256Hex([]byte("external")),
		},
	})
	require.NoError(t, err)
	return id
}

// declareDerived stores content and writes a derivation manifest for it.
func declareDerived(t *testing.T, repo string, content []byte, parents []string, transformDigest string, params map[string]interface{}) string {
	t.Helper()
	id := storeBytes(t, repo, content)
	_, err := manifest.Write(repo, manifest.Node{
		ID:      id,
		Parents: parents,
		Transform: manifest.Transform{
			Name:   "concat_parents",
			Digest: transformDigest,
			Params: params,
			Runner: shRunner,
		},
	})
	require.NoError(t, err)
	return id
}

func TestRun_AdmissionNode(t *testing.T) {
	repo := t.TempDir()
	id := admit(t, repo, []byte("hello"))

	r := Run(context.Background(), repo, id, Options{})
	require.True(t, r.OK, "errors: %v", r.Errors)
	assert.Equal(t, id, r.OutputDigest)
}

func TestRun_ConcatDerivation(t *testing.T) {
	requireShell(t)
	repo := t.TempDir()

	p1 := admit(t, repo, []byte("hello"))
	p2 := admit(t, repo, []byte("world"))
	transform := storeBytes(t, repo, []byte(concatTransform))

	id := declareDerived(t, repo, []byte("helloworld!"), []string{p1, p2}, transform,
		map[string]interface{}{"suffix": "!"})
	// Fixed expectation: sha256("helloworld!").
	assert.Equal(t, "98d234db7e91f5ba026a25d0d6f17bc5ee0a347ea2216b0c9de06d43536d49f4", id)

	r := Run(context.Background(), repo, id, Options{})
	require.True(t, r.OK, "errors: %v", r.Errors)
	assert.Equal(t, id, r.OutputDigest)
}

func TestRun_DerivationMismatch(t *testing.T) {
	requireShell(t)
	repo := t.TempDir()

	p1 := admit(t, repo, []byte("hello"))
	transform := storeBytes(t, repo, []byte(concatTransform))

	// Declared as sha256("EVIL") but the transform reproduces "hello".
	bad := declareDerived(t, repo, []byte("EVIL"), []string{p1}, transform, nil)

	r := Run(context.Background(), repo, bad, Options{})
	require.False(t, r.OK)
	require.Len(t, r.Errors, 1)
	assert.Equal(t,
		"derivation mismatch: expected "+bad+", got "+p1,
		r.Errors[0])
	assert.Equal(t, p1, r.OutputDigest)
}

func TestRun_WorkdirMaterialization(t *testing.T) {
	requireShell(t)
	repo := t.TempDir()
	wd := filepath.Join(t.TempDir(), "wd")

	p1 := admit(t, repo, []byte("hello"))
	p2 := admit(t, repo, []byte("world"))
	transform := storeBytes(t, repo, []byte(concatTransform))
	id := declareDerived(t, repo, []byte("helloworld"), []string{p1, p2}, transform, nil)

	r := Run(context.Background(), repo, id, Options{Workdir: wd})
	require.True(t, r.OK, "errors: %v", r.Errors)
	assert.Equal(t, wd, r.Workdir)

	// Parents materialized in declared order with zero-padded index names.
	first, err := os.ReadFile(filepath.Join(wd, "parents", "000_"+p1+".bin"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(first))
	second, err := os.ReadFile(filepath.Join(wd, "parents", "001_"+p2+".bin"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(second))

	// parents.json: ordered, pretty, newline-terminated.
	pj, err := os.ReadFile(filepath.Join(wd, "parents.json"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(pj), "]\n"))
	assert.Less(t, strings.Index(string(pj), p1), strings.Index(string(pj), p2))

	// params.json: canonical JSON, newline-terminated.
	qj, err := os.ReadFile(filepath.Join(wd, "params.json"))
	require.NoError(t, err)
	assert.Equal(t, "{}\n", string(qj))

	// Transform copy named by digest.
	_, err = os.Stat(filepath.Join(wd, "transform_"+transform+".py"))
	assert.NoError(t, err)
}

func TestRun_ScratchWorkdirRemoved(t *testing.T) {
	requireShell(t)
	repo := t.TempDir()

	p1 := admit(t, repo, []byte("hello"))
	transform := storeBytes(t, repo, []byte(concatTransform))
	id := declareDerived(t, repo, []byte("hello!"), []string{p1}, transform,
		map[string]interface{}{"suffix": "!"})

	r := Run(context.Background(), repo, id, Options{})
	require.True(t, r.OK, "errors: %v", r.Errors)
	// Scratch dir cleaned up, so no path is reported.
	assert.Empty(t, r.Workdir)
}

func TestRun_MissingTransformBlob(t *testing.T) {
	repo := t.TempDir()

	p1 := admit(t, repo, []byte("hello"))
	missing := canon.SHA256Hex([]byte("never stored"))
	id := declareDerived(t, repo, []byte("x"), []string{p1}, missing, nil)

	r := Run(context.Background(), repo, id, Options{})
	require.False(t, r.OK)
	assert.Contains(t, r.Errors[0], "missing transform definition in CAS")
	assert.Contains(t, strings.Join(r.Errors, "\n"), "--transform-file")
}

func TestRun_MissingEnvBlob(t *testing.T) {
	repo := t.TempDir()

	p1 := admit(t, repo, []byte("hello"))
	transform := storeBytes(t, repo, []byte(concatTransform))

	id := storeBytes(t, repo, []byte("x"))
	_, err := manifest.Write(repo, manifest.Node{
		ID:      id,
		Parents: []string{p1},
		Transform: manifest.Transform{
			Name:      "concat_parents",
			Digest:    transform,
			Runner:    shRunner,
			EnvDigest: canon.SHA256Hex([]byte("no such env")),
		},
	})
	require.NoError(t, err)

	r := Run(context.Background(), repo, id, Options{})
	require.False(t, r.OK)
	assert.Contains(t, r.Errors[0], "missing environment description in CAS")
}

func TestRun_MissingParentObject(t *testing.T) {
	repo := t.TempDir()

	// Parent manifest exists but its object was never stored.
	ghost := canon.SHA256Hex([]byte("ghost"))
	_, err := manifest.Write(repo, manifest.Node{
		ID:        ghost,
		Transform: manifest.Transform{Name: "external", Digest: canon.SHA256Hex([]byte("external"))},
	})
	require.NoError(t, err)

	transform := storeBytes(t, repo, []byte(concatTransform))
	id := declareDerived(t, repo, []byte("x"), []string{ghost}, transform, nil)

	r := Run(context.Background(), repo, id, Options{})
	require.False(t, r.OK)
	assert.Contains(t, r.Errors[0], "missing parent object")
}

func TestRun_StructuralErrors(t *testing.T) {
	repo := t.TempDir()
	nodesDir := filepath.Join(repo, "ledger", "nodes")
	require.NoError(t, os.MkdirAll(nodesDir, 0o755))

	write := func(id, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(nodesDir, id+".json"), []byte(body), 0o644))
	}

	idA := canon.SHA256Hex([]byte("a"))
	idB := canon.SHA256Hex([]byte("b"))
	idC := canon.SHA256Hex([]byte("c"))
	idD := canon.SHA256Hex([]byte("d"))
	parent := canon.SHA256Hex([]byte("p"))

	write(idA, `{"id":"`+idA+`","parents":["`+parent+`"],"transform":{"name":"x","digest":"short","params":{}}}`)
	write(idB, `{"id":"`+idB+`","parents":["`+parent+`"],"transform":{"name":"x","digest":"`+parent+`","params":{},"runner":[]}}`)
	write(idC, `{"id":"`+idC+`","parents":["`+parent+`"],"transform":{"name":"x","digest":"`+parent+`","params":"not an object"}}`)
	write(idD, `{"id":"`+idD+`","parents":"not a list","transform":{"name":"x","digest":"`+parent+`","params":{}}}`)

	tests := []struct {
		id   string
		want string
	}{
		{idA, "manifest.transform.digest missing/invalid"},
		{idB, "manifest.transform.runner invalid"},
		{idC, "manifest.transform.params not an object"},
		{idD, "manifest.parents not a list"},
	}
	for _, tt := range tests {
		r := Run(context.Background(), repo, tt.id, Options{})
		require.False(t, r.OK)
		assert.Contains(t, r.Errors[0], tt.want)
	}
}

func TestRun_TransformFailureCapturesOutput(t *testing.T) {
	requireShell(t)
	repo := t.TempDir()

	p1 := admit(t, repo, []byte("hello"))
	failing := storeBytes(t, repo, []byte("#!/bin/sh\necho diagnostics >&2\nexit 3\n"))
	id := declareDerived(t, repo, []byte("x"), []string{p1}, failing, nil)

	r := Run(context.Background(), repo, id, Options{})
	require.False(t, r.OK)
	joined := strings.Join(r.Errors, "\n")
	assert.Contains(t, joined, "transform failed")
	assert.Contains(t, joined, "diagnostics")
}

func TestRun_NoOutputProduced(t *testing.T) {
	requireShell(t)
	repo := t.TempDir()

	p1 := admit(t, repo, []byte("hello"))
	silent := storeBytes(t, repo, []byte("#!/bin/sh\nexit 0\n"))
	id := declareDerived(t, repo, []byte("x"), []string{p1}, silent, nil)

	r := Run(context.Background(), repo, id, Options{})
	require.False(t, r.OK)
	assert.Contains(t, r.Errors[0], "transform produced no output")
}

func TestRun_WASMRunnerRejectsGarbageModule(t *testing.T) {
	repo := t.TempDir()

	p1 := admit(t, repo, []byte("hello"))
	garbage := storeBytes(t, repo, []byte("not a wasm module"))

	id := storeBytes(t, repo, []byte("x"))
	_, err := manifest.Write(repo, manifest.Node{
		ID:      id,
		Parents: []string{p1},
		Transform: manifest.Transform{
			Name:   "wasm_transform",
			Digest: garbage,
			Runner: []string{WASMRunner},
		},
	})
	require.NoError(t, err)

	r := Run(context.Background(), repo, id, Options{})
	require.False(t, r.OK)
	assert.Contains(t, r.Errors[0], "wasm transform compile failed")
}
