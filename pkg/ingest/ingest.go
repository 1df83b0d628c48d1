// Package ingest implements end-to-end artifact admission: hash the source,
// store the blob, and emit the immutable node manifest — all inside the
// repo-wide session lock unless the caller opted out.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/epistemiclabs/ledger/pkg/canon"
	"github.com/epistemiclabs/ledger/pkg/cas"
	"github.com/epistemiclabs/ledger/pkg/index"
	"github.com/epistemiclabs/ledger/pkg/lock"
	"github.com/epistemiclabs/ledger/pkg/manifest"
)

// Options describe one admission.
type Options struct {
	// Parents are ordered node ids; empty marks an admission node.
	Parents []string
	// TransformName is the human identifier. When TransformFile is empty
	// the transform digest is sha256(name bytes) — a non-replayable marker.
	TransformName string
	// TransformFile, when set, is stored in the CAS and its digest pins a
	// replayable derivation.
	TransformFile string
	// Runner is the optional replay command prefix.
	Runner []string
	// EnvDigest optionally pins an environment description blob.
	EnvDigest string
	// ParamsJSON is the raw semantic params; must decode to a JSON object.
	ParamsJSON string
	// Note is a non-semantic annotation stored under meta.
	Note string
	// NoSessionLock disables the session lock (caller-owned risk).
	NoSessionLock bool
	// SessionLockDefault overrides the built-in default-ON lock policy
	// (e.g. from repo config). An explicit LEDGER_INGEST_SESSION_LOCK
	// value still wins over this default; nil means default ON.
	SessionLockDefault *bool
	// Index, when non-nil, receives the new node after the manifest write.
	Index *index.Store
	// Logger receives progress; nil disables logging.
	Logger *slog.Logger
}

// Run admits the file at srcPath and returns its artifact id.
//
// Ingest is deliberately not idempotent at the manifest layer: a second
// ingest of the same bytes finds the blob already stored (no-op) but fails
// the manifest write with manifest.ErrAlreadyExists. The caller decides
// whether a pre-existing identical manifest is an error.
func Run(ctx context.Context, repoRoot, srcPath string, opts Options) (string, error) {
	ctx, span := otel.Tracer("ledger/ingest").Start(ctx, "ingest.run")
	defer span.End()

	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	session := uuid.NewString()
	log = log.With("component", "ingest", "session", session)

	if _, err := os.Stat(srcPath); err != nil {
		return "", fmt.Errorf("ingest: no such file: %s", srcPath)
	}

	var artifactID string
	doIngest := func() error {
		var err error
		artifactID, err = admit(ctx, log, repoRoot, srcPath, opts)
		return err
	}

	lockDefault := true
	if opts.SessionLockDefault != nil {
		lockDefault = *opts.SessionLockDefault
	}
	if lock.EnabledWithDefault(opts.NoSessionLock, lockDefault) {
		if err := lock.WithSessionLock(repoRoot, doIngest); err != nil {
			return "", err
		}
	} else {
		log.WarnContext(ctx, "session lock disabled")
		if err := doIngest(); err != nil {
			return "", err
		}
	}

	span.SetAttributes(attribute.String("artifact.id", artifactID))
	return artifactID, nil
}

func admit(ctx context.Context, log *slog.Logger, repoRoot, srcPath string, opts Options) (string, error) {
	cp := cas.FromRepoRoot(repoRoot)

	artifactID, err := canon.SHA256File(srcPath)
	if err != nil {
		return "", fmt.Errorf("ingest: hash source: %w", err)
	}
	if _, err := cas.StoreBlob(srcPath, cp, artifactID); err != nil {
		return "", err
	}
	log.InfoContext(ctx, "blob stored", "artifact", artifactID)

	transformName, transformDigest, err := resolveTransform(cp, opts)
	if err != nil {
		return "", err
	}

	params, err := decodeParams(opts.ParamsJSON)
	if err != nil {
		return "", err
	}

	node := manifest.Node{
		ID:      artifactID,
		Parents: opts.Parents,
		Transform: manifest.Transform{
			Name:      transformName,
			Digest:    transformDigest,
			Params:    params,
			Runner:    opts.Runner,
			EnvDigest: opts.EnvDigest,
		},
	}
	if opts.Note != "" {
		node.Meta = map[string]interface{}{"note": opts.Note}
	}

	// The manifest write is the linearization point: readers that observe
	// the manifest observe the blob too.
	if _, err := manifest.Write(repoRoot, node); err != nil {
		return "", err
	}
	log.InfoContext(ctx, "manifest written", "artifact", artifactID, "parents", len(opts.Parents))

	if opts.Index != nil {
		if err := opts.Index.InsertNode(ctx, artifactID, opts.Parents); err != nil {
			// The index is derived state, rebuildable from manifests; an
			// index failure does not fail the admission.
			log.WarnContext(ctx, "index update failed", "error", err)
		}
	}

	return artifactID, nil
}

// resolveTransform pins the transform identity. A supplied transform file is
// itself stored in the CAS so the derivation can be replayed by digest; a
// bare name hashes to a stable, non-replayable marker.
func resolveTransform(cp cas.Paths, opts Options) (name, digest string, err error) {
	if opts.TransformFile != "" {
		digest, err = canon.SHA256File(opts.TransformFile)
		if err != nil {
			return "", "", fmt.Errorf("ingest: no such transform file: %s", opts.TransformFile)
		}
		if _, err := cas.StoreBlob(opts.TransformFile, cp, digest); err != nil {
			return "", "", err
		}
		name = opts.TransformName
		if name == "" {
			name = filepath.Base(opts.TransformFile)
		}
		return name, digest, nil
	}

	name = opts.TransformName
	if name == "" {
		name = "unspecified"
	}
	return name, canon.SHA256Hex([]byte(name)), nil
}

func decodeParams(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return map[string]interface{}{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("ingest: params: %w", err)
	}
	obj, isObj := v.(map[string]interface{})
	if !isObj {
		return nil, fmt.Errorf("ingest: params must decode to a JSON object")
	}
	return obj, nil
}
