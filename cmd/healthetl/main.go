// ABOUTME: Entry point for the healthetl CLI.
// ABOUTME: Invokes the root Cobra command.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		os.Exit(1)
	}
}
