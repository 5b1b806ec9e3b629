// Package main is the entry point for the ferryclaw CLI.
package main

import (
	"os"

	"github.com/FerryClaw/FerryClaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
