package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
	"github.com/slimslickner/beanpipe"
)

type matchCmd struct {
	epsilon      string
	linkKey      string
	requireLinks bool
	outputFile   string
}

func (*matchCmd) Name() string { return "match" }
func (*matchCmd) Synopsis() string {
	return "match transfer counterparties and write the annotated ledger"
}
func (*matchCmd) Usage() string {
	return `bpipe match [-epsilon <tolerance>] [-link-key <key>] [-o <file>]

  Runs only the transfer matcher: pairs the two sides of each transfer by
  correlation link, annotates both postings with the counterpart account,
  transaction reference and a shared match identifier, and writes the
  annotated ledger as JSONL to stdout (or -o). Diagnostics go to stderr.

Usage Examples:
# Annotate the default ledger in place.
$ bpipe match -o ledger.jsonl

`
}

func (c *matchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.epsilon, "epsilon", "0", "Tolerance for the amount-inverse comparison, in major units.")
	f.StringVar(&c.linkKey, "link-key", beanpipe.DefaultLinkKey, "Posting metadata key carrying the correlation-link identifier.")
	f.BoolVar(&c.requireLinks, "require-links", false, "Fail when no posting carries a correlation link.")
	f.StringVar(&c.outputFile, "o", "", "Write the annotated ledger to this file instead of stdout.")
}

func (c *matchCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	entries, err := DecodeLedger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	opts := beanpipe.DefaultMatcherOptions()
	opts.LinkKey = c.linkKey
	opts.RequireLinks = c.requireLinks
	opts.Epsilon, err = decimal.NewFromString(c.epsilon)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing epsilon: %v\n", err)
		return subcommands.ExitFailure
	}
	matcher, err := beanpipe.NewMatcher(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	annotated, diags, err := matcher.Resolve(entries)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	out := os.Stdout
	if c.outputFile != "" {
		out, err = os.Create(c.outputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening output file %q: %v\n", c.outputFile, err)
			return subcommands.ExitFailure
		}
		defer out.Close()
	}
	if err := beanpipe.EncodeDirectives(out, annotated); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printDiagnostics(diags)
}

// newMatcher builds a matcher with the default link key and the given CLI
// settings.
func newMatcher(epsilon string, requireLinks bool) (*beanpipe.Matcher, error) {
	opts := beanpipe.DefaultMatcherOptions()
	opts.RequireLinks = requireLinks
	var err error
	opts.Epsilon, err = decimal.NewFromString(epsilon)
	if err != nil {
		return nil, fmt.Errorf("could not parse epsilon %q: %w", epsilon, err)
	}
	return beanpipe.NewMatcher(opts)
}
