// Package verify checks ledger invariants: object bytes hash to their node
// id, every referenced parent has a manifest, and (optionally) the pinned
// derivation replays byte-for-byte.
//
// The verifier accumulates errors across a traversal rather than
// short-circuiting, so a single invocation yields a maximal diagnostic set.
package verify

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/epistemiclabs/ledger/pkg/canon"
	"github.com/epistemiclabs/ledger/pkg/cas"
	"github.com/epistemiclabs/ledger/pkg/manifest"
	"github.com/epistemiclabs/ledger/pkg/replay"
)

// Result reports verification of one node or one reachable closure.
type Result struct {
	OK     bool
	Errors []string
}

// Options tune verification.
type Options struct {
	// Replay additionally re-executes each derivation (stronger check).
	Replay bool
	// ReplayLimit bounds replay subprocess fan-out during reachable
	// traversals; nil means unlimited.
	ReplayLimit *rate.Limiter
	// Runner overrides the default replay runner for manifests without one.
	Runner []string
}

// Node verifies a single node: manifest present, object present and hashing
// to the id, every parent id well-formed with a manifest on disk. Recursive
// verification is the caller's choice via Reachable.
func Node(ctx context.Context, repoRoot, nodeID string, opts Options) Result {
	ctx, span := otel.Tracer("ledger/verify").Start(ctx, "verify.node")
	span.SetAttributes(attribute.String("node.id", nodeID))
	defer span.End()

	var errs []string

	if !manifest.Exists(repoRoot, nodeID) {
		return Result{OK: false, Errors: []string{"missing manifest: " + manifest.Path(repoRoot, nodeID)}}
	}

	cp := cas.FromRepoRoot(repoRoot)
	obj := cp.ObjectPath(nodeID)
	if !cp.Exists(nodeID) {
		errs = append(errs, "missing object: "+obj)
	} else {
		digest, err := canon.SHA256File(obj)
		if err != nil {
			errs = append(errs, fmt.Sprintf("hash object: %v", err))
		} else if digest != nodeID {
			errs = append(errs, fmt.Sprintf("object hash mismatch: expected %s, got %s", nodeID, digest))
		}
	}

	m, err := manifest.Read(repoRoot, nodeID)
	if err != nil {
		errs = append(errs, err.Error())
		return Result{OK: false, Errors: errs}
	}

	for _, p := range parentIDs(m, &errs) {
		if !manifest.Exists(repoRoot, p) {
			errs = append(errs, "missing parent manifest: "+manifest.Path(repoRoot, p))
		}
	}

	if opts.Replay && len(errs) == 0 {
		if opts.ReplayLimit != nil {
			if err := opts.ReplayLimit.Wait(ctx); err != nil {
				return Result{OK: false, Errors: append(errs, fmt.Sprintf("replay: %v", err))}
			}
		}
		rr := replay.Run(ctx, repoRoot, nodeID, replay.Options{Runner: opts.Runner})
		if !rr.OK {
			for _, e := range rr.Errors {
				errs = append(errs, "replay: "+e)
			}
		}
	}

	return Result{OK: len(errs) == 0, Errors: errs}
}

// Reachable verifies rootID and every ancestor reachable via parents.
// Depth-first, memoized by id: cycles are impossible by construction (a
// child digest covers its parents' digests), but memoization also keeps
// diamond DAGs linear. Errors are prefixed with the offending node id.
func Reachable(ctx context.Context, repoRoot, rootID string, opts Options) Result {
	ctx, span := otel.Tracer("ledger/verify").Start(ctx, "verify.reachable")
	span.SetAttributes(attribute.String("node.id", rootID))
	defer span.End()

	var errs []string
	seen := map[string]bool{}
	stack := []string{rootID}

	for len(stack) > 0 {
		nid := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[nid] {
			continue
		}
		seen[nid] = true

		r := Node(ctx, repoRoot, nid, opts)
		for _, e := range r.Errors {
			errs = append(errs, nid+": "+e)
		}

		m, err := manifest.Read(repoRoot, nid)
		if err != nil {
			if !manifest.Exists(repoRoot, nid) {
				continue // already reported by Node
			}
			errs = append(errs, fmt.Sprintf("%s: failed reading manifest: %v", nid, err))
			continue
		}
		var discard []string
		for _, p := range parentIDs(m, &discard) {
			stack = append(stack, p)
		}
	}

	return Result{OK: len(errs) == 0, Errors: errs}
}

// parentIDs extracts the well-formed parent ids, appending a diagnostic for
// each malformed entry.
func parentIDs(m map[string]interface{}, errs *[]string) []string {
	raw, present := m["parents"]
	if !present {
		return nil
	}
	list, isList := raw.([]interface{})
	if !isList {
		*errs = append(*errs, "manifest.parents not a list")
		return nil
	}

	var out []string
	for _, e := range list {
		s, isStr := e.(string)
		if !isStr || !canon.IsHex64(s) {
			*errs = append(*errs, fmt.Sprintf("invalid parent id: %v", e))
			continue
		}
		out = append(out, s)
	}
	return out
}
