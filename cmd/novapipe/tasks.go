package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/muqtarM/novapipe/internal/registry"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List all registered tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTasks()
		},
	}
	return cmd
}

func runTasks() error {
	names := registry.Names()
	fmt.Println("registered tasks:")
	for _, name := range names {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
