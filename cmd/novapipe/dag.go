package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muqtarM/novapipe/internal/engine"
	"github.com/muqtarM/novapipe/internal/pipeline"
)

func newDagCmd(root *rootFlags) *cobra.Command {
	var exportDot bool

	cmd := &cobra.Command{
		Use:   "dag <pipeline-file>",
		Short: "Show the task-dependency graph for a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDag(args[0], exportDot)
		},
	}

	cmd.Flags().BoolVar(&exportDot, "dot", false, "Output Graphviz DOT instead of an ASCII view")

	return cmd
}

func runDag(path string, exportDot bool) error {
	p, err := pipeline.ParseFile(path)
	if err != nil {
		return err
	}

	graph, err := engine.BuildGraph(p)
	if err != nil {
		return err
	}

	if exportDot {
		fmt.Print(graph.ToDOT())
		return nil
	}

	fmt.Println("NovaPipe DAG:")
	for i, level := range graph.Levels {
		names := make([]string, len(level))
		for j, name := range level {
			node := graph.Nodes[name]
			names[j] = fmt.Sprintf("%s (%s)", name, node.Spec.Task)
		}
		fmt.Printf("  level %d: %s\n", i, strings.Join(names, ", "))
	}
	return nil
}
