package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/epistemiclabs/ledger/pkg/refs"
)

func runRefsCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: ledger refs <set|get|list> [args]")
		return 1
	}

	sub := args[0]
	cmd := flag.NewFlagSet("refs "+sub, flag.ContinueOnError)
	cmd.SetOutput(stderr)
	var repo string
	cmd.StringVar(&repo, "repo", "", "Repository root (default: discover via ./ledger)")
	if err := cmd.Parse(args[1:]); err != nil {
		return 1
	}

	repoRoot, err := resolveRepoRoot(repo)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	switch sub {
	case "set":
		if cmd.NArg() != 2 {
			fmt.Fprintln(stderr, "Usage: ledger refs set <name> <id>")
			return 1
		}
		if err := refs.Set(repoRoot, cmd.Arg(0), cmd.Arg(1)); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	case "get":
		if cmd.NArg() != 1 {
			fmt.Fprintln(stderr, "Usage: ledger refs get <name>")
			return 1
		}
		id, err := refs.Get(repoRoot, cmd.Arg(0))
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, id)
		return 0
	case "list":
		names, err := refs.List(repoRoot)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		for _, n := range names {
			fmt.Fprintln(stdout, n)
		}
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown refs command: %s\n", sub)
		return 1
	}
}
