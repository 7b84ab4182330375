// Package main provides the entry point for the steward CLI.
package main

import (
	"os"

	"github.com/shopsteward/steward/cmd/steward/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
