// Package main provides the CLI entry point for the nexus application.
package main

import (
	"fmt"
	"os"

	"github.com/nexus-build/nexus/internal/cmd"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

func main() {
	rootCmd := cmd.NewRootCommand(Version)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
