package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muqtarM/novapipe/internal/engine"
	"github.com/muqtarM/novapipe/internal/logger"
	"github.com/muqtarM/novapipe/internal/pipeline"
	"github.com/muqtarM/novapipe/internal/summary"
)

type runOptions struct {
	vars           []string
	summaryJSON    string
	ignoreFailures bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run <pipeline-file>",
		Short: "Run a pipeline YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(root, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.vars, "var", "D", nil, "Set a pipeline variable KEY=VAL (repeatable)")
	cmd.Flags().StringVar(&opts.summaryJSON, "summary-json", "", "Path to write task summary JSON after the run")
	cmd.Flags().BoolVar(&opts.ignoreFailures, "ignore-failures", false, "Demote every failed_abort to failed_ignored so the run always completes")

	return cmd
}

func runRun(root *rootFlags, path string, opts runOptions) error {
	seed, err := parseVars(opts.vars)
	if err != nil {
		return err
	}

	p, err := pipeline.ParseFile(path)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Options{Level: logLevel(root.verbose), HumanReadable: humanReadable()})
	if err != nil {
		return err
	}

	eng, err := engine.NewEngine(p, log)
	if err != nil {
		return err
	}

	sum, runErr := eng.Run(context.Background(), engine.RunOptions{
		IgnoreFailures: opts.ignoreFailures,
		Seed:           seed,
	})

	if opts.summaryJSON != "" {
		if writeErr := writeSummaryJSON(opts.summaryJSON, sum); writeErr != nil {
			return writeErr
		}
		fmt.Fprintf(os.Stdout, "summary written to %s\n", opts.summaryJSON)
	}

	if runErr != nil {
		return fmt.Errorf("pipeline failed: %w", runErr)
	}

	fmt.Fprintln(os.Stdout, "pipeline completed (check logs for details)")
	return nil
}

func writeSummaryJSON(path string, sum *summary.Summary) error {
	data, err := json.MarshalIndent(sum, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// parseVars turns repeated --var KEY=VAL flags into a seed context map.
func parseVars(vars []string) (map[string]any, error) {
	if len(vars) == 0 {
		return nil, nil
	}
	seed := make(map[string]any, len(vars))
	for _, pair := range vars {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --var format %q: expected KEY=VAL", pair)
		}
		seed[key] = val
	}
	return seed, nil
}
