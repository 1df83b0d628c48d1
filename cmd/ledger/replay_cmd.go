package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/epistemiclabs/ledger/pkg/config"
	"github.com/epistemiclabs/ledger/pkg/replay"
)

func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("replay", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		repo    string
		workdir string
		keep    bool
	)
	cmd.StringVar(&repo, "repo", "", "Repository root (default: discover via ./ledger)")
	cmd.StringVar(&workdir, "workdir", "", "Optional directory to materialize inputs/output (useful for debugging).")
	cmd.BoolVar(&keep, "keep", false, "Keep the workdir (when using an auto-temp dir) after replay.")

	if err := cmd.Parse(args); err != nil {
		return 1
	}
	if cmd.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: ledger replay <id> [--workdir dir] [--keep]")
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

	start := time.Now()
	r := replay.Run(ctx, repoRoot, cmd.Arg(0), replay.Options{
		Workdir: workdir,
		Keep:    keep,
		Runner:  cfg.DefaultRunner,
	})
	telemetry.RecordOperation(ctx, "replay", r.OK, time.Since(start))
	if r.OK {
		fmt.Fprintln(stdout, "OK")
		return 0
	}
	for _, e := range r.Errors {
		fmt.Fprintln(stderr, e)
	}
	return 2
}
