// Package main is the entry point for ratectl, the terminal client for the
// rate-shopping API.
package main

import (
	"os"

	"rateshop-backend/cmd/ratectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
