package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/epistemiclabs/ledger/pkg/canon"
)

func runHashCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("hash", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	if err := cmd.Parse(args); err != nil {
		return 1
	}
	if cmd.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: ledger hash <path>")
		return 1
	}

	digest, err := canon.SHA256File(cmd.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "no such file: %s\n", cmd.Arg(0))
		return 1
	}
	fmt.Fprintln(stdout, digest)
	return 0
}
