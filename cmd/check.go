package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/slimslickner/beanpipe"
)

type checkCmd struct {
	tagsConfig     string
	metadataSchema string
	epsilon        string
	requireLinks   bool
}

func (*checkCmd) Name() string { return "check" }
func (*checkCmd) Synopsis() string {
	return "run the full validation and enrichment pipeline over the ledger"
}
func (*checkCmd) Usage() string {
	return `bpipe check [-tags <tags.yaml>] [-schema <metadata_schema.yaml>] [-epsilon <tolerance>]

  Decodes the ledger, promotes posting tags, validates tags and metadata,
  matches transfer counterparties, and prints every diagnostic. The command
  fails when any diagnostic has error severity.

Usage Examples:
# Check the default ledger with both validator configurations.
$ bpipe check -tags tags.yaml -schema metadata_schema.yaml

`
}

func (c *checkCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.tagsConfig, "tags", "", "Path to the allowed-tags configuration. Tag validation is skipped when empty.")
	f.StringVar(&c.metadataSchema, "schema", "", "Path to the metadata schema. Metadata validation is skipped when empty.")
	f.StringVar(&c.epsilon, "epsilon", "0", "Tolerance for the transfer amount-inverse comparison, in major units.")
	f.BoolVar(&c.requireLinks, "require-links", false, "Fail when no posting carries a correlation link.")
}

func (c *checkCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	entries, err := DecodeLedger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	plugins := []beanpipe.Plugin{beanpipe.PostingTags{}}

	if c.tagsConfig != "" {
		cfg, err := beanpipe.LoadTagsConfig(c.tagsConfig)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		validTags, err := beanpipe.NewValidTags(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		plugins = append(plugins, validTags, beanpipe.MissingTags{})
	}

	if c.metadataSchema != "" {
		schema, err := beanpipe.LoadMetadataSchema(c.metadataSchema)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		metadataCheck, err := beanpipe.NewMetadataCheck(schema)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		plugins = append(plugins, metadataCheck)
	}

	matcher, err := newMatcher(c.epsilon, c.requireLinks)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	plugins = append(plugins, matcher)

	_, diags, err := beanpipe.Pipeline(entries, plugins...)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printDiagnostics(diags)
}
