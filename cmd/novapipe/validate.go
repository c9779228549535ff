package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muqtarM/novapipe/internal/engine"
	"github.com/muqtarM/novapipe/internal/pipeline"
)

func newValidateCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <pipeline-file>",
		Short: "Parse and validate a pipeline without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0])
		},
	}
	return cmd
}

func runValidate(path string) error {
	p, err := pipeline.ParseFile(path)
	if err != nil {
		return err
	}

	graph, err := engine.BuildGraph(p)
	if err != nil {
		return err
	}

	fmt.Printf("%s is valid: %d tasks across %d levels\n", path, len(graph.Nodes), len(graph.Levels))
	return nil
}
