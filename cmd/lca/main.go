// Package main is the entry point for the lca CLI.
package main

import (
	"os"

	"github.com/gzhole/lca/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
