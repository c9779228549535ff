package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const starterPipeline = `# NovaPipe pipeline template
tasks:
  - name: print_message
    task: print_message
    params:
      message: "Hello, NovaPipe!"
`

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init [name]",
		Short: "Create a starter pipeline YAML file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "pipeline.yaml"
			if len(args) == 1 {
				name = args[0]
			}
			return runInit(name)
		},
	}
	return cmd
}

func runInit(name string) error {
	if _, err := os.Stat(name); err == nil {
		return fmt.Errorf("%s already exists, aborting", name)
	}

	if err := os.WriteFile(name, []byte(starterPipeline), 0o644); err != nil {
		return err
	}

	fmt.Printf("initialized pipeline template at %s\n", name)
	return nil
}
