// Package main is the entry point for the trade-route CLI.
package main

import (
	"os"

	"github.com/iwvelando/trade-route/cmd/trade-route/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
