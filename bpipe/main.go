package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
	"github.com/slimslickner/beanpipe/cmd"
)

func main() {
	// Shell completion: a no-op unless invoked by the shell completion hook.
	completion().Complete("bpipe")

	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))

	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	for _, c := range cmd.Commands() {
		commander.Register(c, "")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

func completion() *complete.Command {
	yaml := predict.Files("*.yaml")
	ledger := map[string]complete.Predictor{"ledger-file": predict.Files("*.jsonl")}
	return &complete.Command{
		Flags: ledger,
		Sub: map[string]*complete.Command{
			"check": {Flags: map[string]complete.Predictor{
				"tags":    yaml,
				"schema":  yaml,
				"epsilon": predict.Something,
			}},
			"match": {Flags: map[string]complete.Predictor{
				"epsilon":  predict.Something,
				"link-key": predict.Something,
				"o":        predict.Files("*.jsonl"),
			}},
			"fmt":   {},
			"topic": {Args: predict.Set{"readme", "matching", "tags", "metadata"}},
		},
	}
}
