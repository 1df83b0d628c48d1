// Package manifest implements the immutable per-node JSON manifests of the
// provenance ledger.
//
// Manifests are append-only: once written they are never modified or deleted,
// and a second write for the same node id fails with ErrAlreadyExists. The
// on-disk form is human-readable canonical JSON — sorted keys, 2-space
// indentation, trailing newline — and that canonical form is what gets
// digested for any downstream cross-check.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/epistemiclabs/ledger/pkg/canon"
)

// ErrAlreadyExists is returned when writing a manifest that is already on
// disk (append-only invariant).
var ErrAlreadyExists = errors.New("node manifest already exists")

// ErrNotFound is returned when reading a manifest that does not exist.
var ErrNotFound = errors.New("node manifest not found")

// Transform pins a derivation: the transform blob digest, its semantic
// params, and the replay contract.
type Transform struct {
	Name   string
	Digest string
	Params map[string]interface{}
	// Replay contract (optional; semantic if present):
	// Runner is the command prefix used for replay, e.g. ["python3"].
	// EnvDigest is the hash of an environment description blob in the CAS
	// (lockfile, container recipe).
	Runner    []string
	EnvDigest string
}

// Node describes one artifact and its derivation. Parents are ordered and
// order is semantic: it is the input order passed to the transform on
// replay. Empty parents marks an admission node.
type Node struct {
	ID        string
	Parents   []string
	Transform Transform
	Meta      map[string]interface{}
}

// toMap builds the serializable form. Optional fields are emitted only when
// present.
func (n Node) toMap() map[string]interface{} {
	t := map[string]interface{}{
		"name":   n.Transform.Name,
		"digest": n.Transform.Digest,
		"params": paramsOrEmpty(n.Transform.Params),
	}
	if n.Transform.Runner != nil {
		t["runner"] = n.Transform.Runner
	}
	if n.Transform.EnvDigest != "" {
		t["env_digest"] = n.Transform.EnvDigest
	}

	parents := n.Parents
	if parents == nil {
		parents = []string{}
	}
	m := map[string]interface{}{
		"id":        n.ID,
		"parents":   parents,
		"transform": t,
	}
	if n.Meta != nil {
		m["meta"] = n.Meta
	}
	return m
}

func paramsOrEmpty(p map[string]interface{}) map[string]interface{} {
	if p == nil {
		return map[string]interface{}{}
	}
	return p
}

// Path returns <root>/ledger/nodes/<id>.json.
func Path(repoRoot, nodeID string) string {
	return filepath.Join(repoRoot, "ledger", "nodes", nodeID+".json")
}

// Write persists the node manifest. The encoded form is checked against the
// pinned schema before the manifest file is created (only the nodes
// directory may already have been made), so a malformed node never becomes
// an immutable file. It fails with ErrAlreadyExists if the target
// path is already present; O_EXCL makes the check race-free.
func Write(repoRoot string, n Node) (string, error) {
	p := Path(repoRoot, n.ID)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("manifest: mkdir: %w", err)
	}

	payload, err := canon.CanonicalIndent(n.toMap())
	if err != nil {
		return "", fmt.Errorf("manifest: encode %s: %w", n.ID, err)
	}
	payload = append(payload, '\n')

	if err := ValidateBytes(payload); err != nil {
		return "", fmt.Errorf("manifest: %s: %w", n.ID, err)
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return "", fmt.Errorf("%w: %s", ErrAlreadyExists, p)
		}
		return "", fmt.Errorf("manifest: create %s: %w", p, err)
	}
	if _, err := f.Write(payload); err != nil {
		f.Close()
		return "", fmt.Errorf("manifest: write %s: %w", p, err)
	}
	return p, f.Close()
}

// Read returns the parsed manifest as a generic tree. Unknown keys are
// preserved; missing required keys are not synthesized — structural
// validation is the consumer's concern and is done field by field so that
// missing vs ill-typed vs well-formed are reported precisely.
func Read(repoRoot, nodeID string) (map[string]interface{}, error) {
	p := Path(repoRoot, nodeID)
	raw, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("manifest: read %s: %w", p, err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", p, err)
	}
	return m, nil
}

// Exists reports whether the manifest for nodeID is on disk.
func Exists(repoRoot, nodeID string) bool {
	_, err := os.Stat(Path(repoRoot, nodeID))
	return err == nil
}

// DecodeRunner interprets the manifest's runner field. The shape is a tagged
// variant: absent (nil), a single non-empty string (one-element command), or
// an ordered non-empty sequence of strings. Anything else is a structural
// error. ok reports whether the field resolved to a concrete command; when
// false with a nil error, the caller applies its default.
func DecodeRunner(v interface{}) (argv []string, ok bool, err error) {
	switch t := v.(type) {
	case nil:
		return nil, false, nil
	case string:
		if t == "" {
			return nil, false, errors.New("manifest.transform.runner invalid (empty string)")
		}
		return []string{t}, true, nil
	case []interface{}:
		if len(t) == 0 {
			return nil, false, errors.New("manifest.transform.runner invalid (empty array)")
		}
		out := make([]string, len(t))
		for i, e := range t {
			s, isStr := e.(string)
			if !isStr || s == "" {
				return nil, false, errors.New("manifest.transform.runner invalid (expected array of strings)")
			}
			out[i] = s
		}
		return out, true, nil
	default:
		return nil, false, errors.New("manifest.transform.runner invalid (expected array of strings)")
	}
}
