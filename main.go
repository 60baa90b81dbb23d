// Package main is the entry point for the websniffer agent.
package main

import (
	"fmt"
	"os"

	"github.com/srun-soft/websniffer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
