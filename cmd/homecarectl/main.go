// Package main is the entry point for homecarectl, the operator CLI.
package main

import (
	"fmt"
	"os"

	"github.com/pkordes/homecare/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
