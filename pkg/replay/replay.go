// Package replay re-executes a node derivation from its pinned transform,
// ordered parents, and params, and asserts byte equality of the output
// against the declared node id.
//
// The engine does not enforce transform determinism; it tests it via the
// output-digest check. Replay executes code — do not run it on untrusted
// transforms without sandboxing (the "wasm" runner provides a deny-by-default
// alternative for WASI transforms).
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/epistemiclabs/ledger/pkg/canon"
	"github.com/epistemiclabs/ledger/pkg/cas"
	"github.com/epistemiclabs/ledger/pkg/manifest"
)

// DefaultRunner is the documented platform default applied when a manifest
// carries no runner. The manifest's runner, when present, is authoritative.
var DefaultRunner = []string{"python3"}

// Result is the outcome of one replay.
type Result struct {
	OK           bool
	Errors       []string
	OutputDigest string
	Workdir      string
}

// Options tune workdir handling.
type Options struct {
	// Workdir, when set, is used (and created) instead of a scratch
	// directory, and is never removed. Useful for debugging.
	Workdir string
	// Keep retains an auto-created scratch directory after replay.
	Keep bool
	// Runner overrides DefaultRunner for manifests that carry none.
	Runner []string
	// Logger receives replay progress; nil disables logging.
	Logger *slog.Logger
}

func fail(wd string, errs ...string) Result {
	return Result{OK: false, Errors: errs, Workdir: wd}
}

// Run replays the derivation of nodeID under repoRoot.
//
// Admission nodes (empty parents) succeed immediately: there is nothing to
// replay and the output digest is the node id itself.
func Run(ctx context.Context, repoRoot, nodeID string, opts Options) Result {
	ctx, span := otel.Tracer("ledger/replay").Start(ctx, "replay.node")
	span.SetAttributes(attribute.String("node.id", nodeID))
	defer span.End()

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("component", "replay", "node", short(nodeID))

	m, err := manifest.Read(repoRoot, nodeID)
	if err != nil {
		return fail("", err.Error())
	}

	rawParents, isList := m["parents"].([]interface{})
	if m["parents"] != nil && !isList {
		return fail("", "manifest.parents not a list")
	}
	if len(rawParents) == 0 {
		return Result{OK: true, OutputDigest: nodeID, Workdir: opts.Workdir}
	}

	t, isObj := m["transform"].(map[string]interface{})
	if !isObj {
		return fail("", "manifest.transform not an object")
	}

	transformDigest, isStr := t["digest"].(string)
	if !isStr || !canon.IsHex64(transformDigest) {
		return fail("", "manifest.transform.digest missing/invalid")
	}

	envDigest := ""
	if raw, present := t["env_digest"]; present && raw != nil {
		s, isStr := raw.(string)
		if !isStr || !canon.IsHex64(s) {
			return fail("", "manifest.transform.env_digest invalid (expected 64-hex)")
		}
		envDigest = s
	}

	runner, hasRunner, err := manifest.DecodeRunner(t["runner"])
	if err != nil {
		return fail("", err.Error())
	}
	if !hasRunner {
		runner = opts.Runner
		if runner == nil {
			runner = DefaultRunner
		}
	}

	params, isObj := paramsOf(t)
	if !isObj {
		return fail("", "manifest.transform.params not an object")
	}

	cp := cas.FromRepoRoot(repoRoot)
	transformObj := cp.ObjectPath(transformDigest)
	if _, err := os.Stat(transformObj); err != nil {
		return fail("",
			"missing transform definition in CAS",
			"  expected: "+transformObj,
			"  hint: ingest with --transform-file to store transform bytes",
		)
	}

	if envDigest != "" {
		envObj := cp.ObjectPath(envDigest)
		if _, err := os.Stat(envObj); err != nil {
			return fail("",
				"missing environment description in CAS",
				"  expected: "+envObj,
				"  hint: store your lockfile/container recipe as a CAS blob",
			)
		}
	}

	// Workdir management: caller-supplied dirs persist; scratch dirs are
	// removed unless kept.
	wd := opts.Workdir
	scratch := false
	if wd != "" {
		abs, err := filepath.Abs(wd)
		if err != nil {
			return fail("", fmt.Sprintf("resolve workdir: %v", err))
		}
		wd = abs
		if err := os.MkdirAll(wd, 0o755); err != nil {
			return fail("", fmt.Sprintf("create workdir: %v", err))
		}
	} else {
		tmp, err := os.MkdirTemp("", "ledger-replay-"+short(nodeID)+"-")
		if err != nil {
			return fail("", fmt.Sprintf("create scratch dir: %v", err))
		}
		wd = tmp
		scratch = true
	}
	if scratch && !opts.Keep {
		defer os.RemoveAll(wd)
	}

	r := materializeAndInvoke(ctx, log, cp, wd, nodeID, transformDigest, runner, rawParents, params)
	if scratch && !opts.Keep {
		// The scratch dir is gone by the time the caller sees the result.
		r.Workdir = ""
	}
	return r
}

func materializeAndInvoke(
	ctx context.Context,
	log *slog.Logger,
	cp cas.Paths,
	wd, nodeID, transformDigest string,
	runner []string,
	rawParents []interface{},
	params map[string]interface{},
) Result {
	var errs []string

	parentsDir := filepath.Join(wd, "parents")
	if err := os.MkdirAll(parentsDir, 0o755); err != nil {
		return fail(wd, fmt.Sprintf("create parents dir: %v", err))
	}

	// Parent-resolution failures are aggregated into one report rather than
	// short-circuiting on the first.
	type parentEntry struct {
		Index int    `json:"index"`
		ID    string `json:"id"`
		Path  string `json:"path"`
	}
	entries := make([]parentEntry, 0, len(rawParents))
	for i, raw := range rawParents {
		pid, isStr := raw.(string)
		if !isStr || !canon.IsHex64(pid) {
			errs = append(errs, fmt.Sprintf("invalid parent id: %v", raw))
			continue
		}
		obj := cp.ObjectPath(pid)
		src, err := os.ReadFile(obj)
		if err != nil {
			errs = append(errs, "missing parent object: "+obj)
			continue
		}
		name := fmt.Sprintf("%03d_%s.bin", i, pid)
		if err := os.WriteFile(filepath.Join(parentsDir, name), src, 0o644); err != nil {
			return fail(wd, fmt.Sprintf("materialize parent %s: %v", pid, err))
		}
		entries = append(entries, parentEntry{Index: i, ID: pid, Path: name})
	}
	if len(errs) > 0 {
		return fail(wd, errs...)
	}

	parentsJSON, err := canon.CanonicalIndent(entries)
	if err != nil {
		return fail(wd, fmt.Sprintf("encode parents.json: %v", err))
	}
	if err := os.WriteFile(filepath.Join(wd, "parents.json"), append(parentsJSON, '\n'), 0o644); err != nil {
		return fail(wd, fmt.Sprintf("write parents.json: %v", err))
	}

	paramsJSON, err := canon.Canonical(params)
	if err != nil {
		return fail(wd, fmt.Sprintf("encode params.json: %v", err))
	}
	if err := os.WriteFile(filepath.Join(wd, "params.json"), append(paramsJSON, '\n'), 0o644); err != nil {
		return fail(wd, fmt.Sprintf("write params.json: %v", err))
	}

	transformBytes, err := os.ReadFile(cp.ObjectPath(transformDigest))
	if err != nil {
		return fail(wd, fmt.Sprintf("read transform blob: %v", err))
	}
	// The file name includes the digest so inspection of a kept workdir is
	// unambiguous.
	transformName := "transform_" + transformDigest + ".py"
	if runner[0] == WASMRunner {
		transformName = "transform_" + transformDigest + ".wasm"
	}
	transformPath := filepath.Join(wd, transformName)
	if err := os.WriteFile(transformPath, transformBytes, 0o755); err != nil {
		return fail(wd, fmt.Sprintf("write transform: %v", err))
	}

	outPath := filepath.Join(wd, "out.bin")

	log.InfoContext(ctx, "invoking transform", "runner", strings.Join(runner, " "), "parents", len(entries))

	if runner[0] == WASMRunner {
		if errs := runWASI(ctx, wd, transformName, transformBytes); len(errs) > 0 {
			return fail(wd, errs...)
		}
	} else {
		argv := append(append([]string{}, runner...),
			transformPath,
			"--parents-manifest", filepath.Join(wd, "parents.json"),
			"--parents-dir", parentsDir,
			"--params-path", filepath.Join(wd, "params.json"),
			"--out", outPath,
		)
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = wd
		var stdout, stderr strings.Builder
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			errs = append(errs, fmt.Sprintf("transform failed (%v)", err))
			if s := strings.TrimSpace(stdout.String()); s != "" {
				errs = append(errs, "stdout:\n"+s)
			}
			if s := strings.TrimSpace(stderr.String()); s != "" {
				errs = append(errs, "stderr:\n"+s)
			}
			return fail(wd, errs...)
		}
	}

	if _, err := os.Stat(outPath); err != nil {
		return fail(wd, "transform produced no output (missing out.bin)")
	}

	outDigest, err := canon.SHA256File(outPath)
	if err != nil {
		return fail(wd, fmt.Sprintf("hash output: %v", err))
	}
	if outDigest != nodeID {
		return Result{
			OK:           false,
			Errors:       []string{fmt.Sprintf("derivation mismatch: expected %s, got %s", nodeID, outDigest)},
			OutputDigest: outDigest,
			Workdir:      wd,
		}
	}

	return Result{OK: true, OutputDigest: outDigest, Workdir: wd}
}

// paramsOf treats an absent params field as an empty object, matching the
// manifest writer which always emits one.
func paramsOf(t map[string]interface{}) (map[string]interface{}, bool) {
	raw, present := t["params"]
	if !present || raw == nil {
		return map[string]interface{}{}, true
	}
	p, isObj := raw.(map[string]interface{})
	return p, isObj
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
