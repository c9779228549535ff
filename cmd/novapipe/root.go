package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type rootFlags struct {
	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "novapipe",
		Short:         "NovaPipe runs declarative task-DAG pipelines with retries, timeouts, and templating",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newValidateCmd(flags))
	cmd.AddCommand(newDagCmd(flags))
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newTasksCmd())

	return cmd
}

// humanReadable reports whether stdout is an interactive terminal, used to
// choose between the human-readable and JSON log formatters.
func humanReadable() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func logLevel(verbose bool) string {
	if verbose {
		return "debug"
	}
	return "info"
}
