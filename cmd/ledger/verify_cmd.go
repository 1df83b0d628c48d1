package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/epistemiclabs/ledger/pkg/config"
	"github.com/epistemiclabs/ledger/pkg/verify"
)

func runVerifyCmd(args []string, stdout, stderr io.Writer) int {
	return verifyCommon(args, stdout, stderr, false)
}

func runVerifyReachableCmd(args []string, stdout, stderr io.Writer) int {
	return verifyCommon(args, stdout, stderr, true)
}

func verifyCommon(args []string, stdout, stderr io.Writer, reachable bool) int {
	name := "verify"
	if reachable {
		name = "verify-reachable"
	}
	cmd := flag.NewFlagSet(name, flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		repo       string
		withReplay bool
	)
	cmd.StringVar(&repo, "repo", "", "Repository root (default: discover via ./ledger)")
	cmd.BoolVar(&withReplay, "replay", false, "Also replay derivations (requires transform blobs in CAS).")

	if err := cmd.Parse(args); err != nil {
		return 1
	}
	if cmd.NArg() != 1 {
		fmt.Fprintf(stderr, "Usage: ledger %s <id> [--replay]\n", name)
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

	opts := verify.Options{Replay: withReplay, Runner: cfg.DefaultRunner}

	start := time.Now()
	var r verify.Result
	if reachable {
		if withReplay {
			// Bound subprocess fan-out on large DAGs.
			opts.ReplayLimit = rate.NewLimiter(rate.Limit(4), 4)
		}
		r = verify.Reachable(ctx, repoRoot, cmd.Arg(0), opts)
	} else {
		r = verify.Node(ctx, repoRoot, cmd.Arg(0), opts)
	}
	telemetry.RecordOperation(ctx, name, r.OK, time.Since(start))

	if r.OK {
		fmt.Fprintln(stdout, "OK")
		return 0
	}
	for _, e := range r.Errors {
		fmt.Fprintln(stderr, e)
	}
	return 2
}
