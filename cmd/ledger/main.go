// Command ledger is the CLI over the append-only provenance ledger: ingest
// artifacts, verify nodes and their ancestor DAGs, replay derivations, and
// manage convenience refs.
//
// Exit codes: 0 success; 2 verification failure (errors listed on stderr);
// 1 structural/runtime error.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/epistemiclabs/ledger/pkg/config"
	"github.com/epistemiclabs/ledger/pkg/observability"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the dispatcher entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 1
	}

	switch args[1] {
	case "hash":
		return runHashCmd(args[2:], stdout, stderr)
	case "ingest":
		return runIngestCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(args[2:], stdout, stderr)
	case "verify-reachable":
		return runVerifyReachableCmd(args[2:], stdout, stderr)
	case "replay":
		return runReplayCmd(args[2:], stdout, stderr)
	case "refs":
		return runRefsCmd(args[2:], stdout, stderr)
	case "index":
		return runIndexCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ledger <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  hash <path>                 Compute sha256 of a file")
	fmt.Fprintln(w, "  ingest <path> [options]     Store artifact + write immutable node manifest")
	fmt.Fprintln(w, "  verify <id> [--replay]      Verify node (object hash + parent reachability)")
	fmt.Fprintln(w, "  verify-reachable <id>       Verify a node and all reachable ancestors")
	fmt.Fprintln(w, "  replay <id> [options]       Replay a node derivation and verify output hash")
	fmt.Fprintln(w, "  refs <set|get|list>         Manage mutable convenience refs")
	fmt.Fprintln(w, "  index rebuild               Rebuild the node index from manifests")
}

// repoRootFromCwd walks upward until it finds a ledger/ directory. Bounded
// so a stray cwd fails fast instead of scanning the whole filesystem.
func repoRootFromCwd() (string, error) {
	p, err := os.Getwd()
	if err != nil {
		return "", err
	}
	p, err = filepath.Abs(p)
	if err != nil {
		return "", err
	}

	for i := 0; i < 20; i++ {
		if st, err := os.Stat(filepath.Join(p, "ledger")); err == nil && st.IsDir() {
			return p, nil
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return "", fmt.Errorf("could not find repo root (missing ./ledger directory); run inside the repo or pass --repo")
}

// resolveRepoRoot honors an explicit --repo flag, falling back to discovery.
func resolveRepoRoot(flagValue string) (string, error) {
	if flagValue != "" {
		return filepath.Abs(flagValue)
	}
	return repoRootFromCwd()
}

// newTelemetry builds the repo's observability provider. Telemetry stays a
// no-op until the repo config names an OTLP endpoint; the returned shutdown
// func flushes pending export on the way out.
func newTelemetry(ctx context.Context, cfg *config.Config) (*observability.Provider, func(), error) {
	oc := observability.DefaultConfig()
	if cfg.OTLPEndpoint != "" {
		oc.Enabled = true
		oc.OTLPEndpoint = cfg.OTLPEndpoint
	}

	prov, err := observability.New(ctx, oc)
	if err != nil {
		return nil, nil, err
	}
	return prov, func() { _ = prov.Shutdown(ctx) }, nil
}

// multiFlag collects repeatable string flags in declared order.
type multiFlag []string

func (m *multiFlag) String() string {
	return fmt.Sprintf("%v", []string(*m))
}

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
