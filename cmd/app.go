// Package cmd implements the CLI application to validate and enrich a ledger.
package cmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/slimslickner/beanpipe"
)

// Commands returns all subcommands of the bpipe tool.
func Commands() []subcommands.Command {
	return []subcommands.Command{
		&checkCmd{},
		&matchCmd{},
		&fmtCmd{},
		&topicCmd{},
	}
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var ledgerFile = flag.String("ledger-file", "ledger.jsonl", "Path to the ledger file containing directives (JSONL format)")

// DecodeLedger reads the app default ledger file into a directive stream.
func DecodeLedger() ([]beanpipe.Directive, error) {
	f, err := os.Open(*ledgerFile)
	if err != nil {
		return nil, fmt.Errorf("could not open ledger file %q: %w", *ledgerFile, err)
	}
	defer f.Close()

	entries, err := beanpipe.DecodeDirectives(f)
	if err != nil {
		return nil, fmt.Errorf("could not decode ledger file %q: %w", *ledgerFile, err)
	}
	return entries, nil
}

// printDiagnostics reports all diagnostics on stderr and returns the exit
// status: failure iff any diagnostic has error severity.
func printDiagnostics(diags []beanpipe.Diagnostic) subcommands.ExitStatus {
	for _, d := range diags {
		fmt.Fprintln(os.Stderr, d)
	}
	if beanpipe.HasErrors(diags) {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
