package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/epistemiclabs/ledger/pkg/config"
	"github.com/epistemiclabs/ledger/pkg/index"
	"github.com/epistemiclabs/ledger/pkg/ingest"
)

func runIngestCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("ingest", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		repo          string
		parents       multiFlag
		runner        multiFlag
		transform     string
		transformFile string
		envDigest     string
		paramsJSON    string
		note          string
		noSessionLock bool
		verbose       bool
	)
	cmd.StringVar(&repo, "repo", "", "Repository root (default: discover via ./ledger)")
	cmd.Var(&parents, "parent", "Parent node id (sha256). May be repeated.")
	cmd.StringVar(&transform, "transform", "", "Transform name/identifier (hashed if no transform file).")
	cmd.StringVar(&transformFile, "transform-file", "", "Path to transform definition file; digest = sha256(file).")
	cmd.Var(&runner, "runner", "Replay runner command prefix (repeatable), e.g. --runner python3 --runner -I.")
	cmd.StringVar(&envDigest, "env-digest", "", "sha256 of the execution environment description blob.")
	cmd.StringVar(&paramsJSON, "params-json", "", "JSON object of semantic params (canonical).")
	cmd.StringVar(&note, "note", "", "Non-semantic note.")
	cmd.BoolVar(&noSessionLock, "no-session-lock", false, "Disable repo-wide ingest-session lock (not recommended).")
	cmd.BoolVar(&verbose, "v", false, "Verbose logging to stderr.")

	if err := cmd.Parse(args); err != nil {
		return 1
	}
	if cmd.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: ledger ingest <path> [options]")
		return 1
	}

	repoRoot, err := resolveRepoRoot(repo)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	cfg, err := config.Load(repoRoot)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	ctx := context.Background()
	telemetry, shutdown, err := newTelemetry(ctx, cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer shutdown()

	opts := ingest.Options{
		Parents:            parents,
		TransformName:      transform,
		TransformFile:      transformFile,
		Runner:             runner,
		EnvDigest:          envDigest,
		ParamsJSON:         paramsJSON,
		Note:               note,
		NoSessionLock:      noSessionLock,
		SessionLockDefault: cfg.SessionLock,
	}
	if verbose {
		opts.Logger = slog.New(slog.NewTextHandler(stderr, nil))
	}

	// Best-effort: a usable index keeps itself current across ingests, but
	// admission never depends on it.
	idxPath := cfg.IndexPath
	if idxPath == "" {
		idxPath = index.DefaultPath(repoRoot)
	}
	if _, statErr := os.Stat(idxPath); statErr == nil {
		if idx, idxErr := index.OpenSQLite(idxPath); idxErr == nil {
			defer idx.Close()
			opts.Index = idx
		}
	}

	start := time.Now()
	artifactID, err := ingest.Run(ctx, repoRoot, cmd.Arg(0), opts)
	telemetry.RecordOperation(ctx, "ingest", err == nil, time.Since(start))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, artifactID)
	return 0
}
