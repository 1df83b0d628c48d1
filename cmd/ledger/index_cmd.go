package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/epistemiclabs/ledger/pkg/config"
	"github.com/epistemiclabs/ledger/pkg/index"
)

func runIndexCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 || args[0] != "rebuild" {
		fmt.Fprintln(stderr, "Usage: ledger index rebuild [--repo dir] [--postgres dsn]")
		return 1
	}

	cmd := flag.NewFlagSet("index rebuild", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var (
		repo string
		dsn  string
	)
	cmd.StringVar(&repo, "repo", "", "Repository root (default: discover via ./ledger)")
	cmd.StringVar(&dsn, "postgres", "", "Rebuild into a Postgres index instead of the local SQLite file.")
	if err := cmd.Parse(args[1:]); err != nil {
		return 1
	}

	repoRoot, err := resolveRepoRoot(repo)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var idx *index.Store
	if dsn != "" {
		idx, err = index.OpenPostgres(dsn)
	} else {
		cfg, cfgErr := config.Load(repoRoot)
		if cfgErr != nil {
			fmt.Fprintln(stderr, cfgErr)
			return 1
		}
		path := cfg.IndexPath
		if path == "" {
			path = index.DefaultPath(repoRoot)
		}
		idx, err = index.OpenSQLite(path)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer idx.Close()

	n, err := idx.Rebuild(context.Background(), repoRoot)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "indexed %d nodes\n", n)
	return 0
}
