package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/slimslickner/beanpipe"
)

type fmtCmd struct{}

func (*fmtCmd) Name() string { return "fmt" }
func (*fmtCmd) Synopsis() string {
	return "rewrites the ledger file into a canonical form"
}
func (*fmtCmd) Usage() string {
	return `bpipe fmt

  Reads all directives and writes them back in a canonical JSONL form:
  stable field order, metadata keys in lexical order, no blank lines.
  Two ledgers holding the same directives format to identical bytes, which
  keeps diffs of version-controlled ledgers readable.

`
}

func (*fmtCmd) SetFlags(f *flag.FlagSet) {}

func (*fmtCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	entries, err := DecodeLedger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	tmp := *ledgerFile + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating %q: %v\n", tmp, err)
		return subcommands.ExitFailure
	}
	if err := beanpipe.EncodeDirectives(out, entries); err != nil {
		out.Close()
		os.Remove(tmp)
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := out.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing %q: %v\n", tmp, err)
		return subcommands.ExitFailure
	}
	if err := os.Rename(tmp, *ledgerFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error replacing %q: %v\n", *ledgerFile, err)
		return subcommands.ExitFailure
	}

	fmt.Printf("Successfully formatted %s\n", *ledgerFile)
	return subcommands.ExitSuccess
}
