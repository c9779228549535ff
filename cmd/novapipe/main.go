package main

import (
	"fmt"
	"os"

	"github.com/muqtarM/novapipe/internal/tasks"
)

func main() {
	tasks.RegisterBuiltins()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
