// Package main is the entry point for the shellmark CLI.
package main

import (
	"os"

	"github.com/runger/shellmark/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
