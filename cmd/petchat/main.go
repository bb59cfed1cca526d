// Package main is the entry point for the petchat CLI.
package main

import (
	"fmt"
	"os"

	"petchat/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
