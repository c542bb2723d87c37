// Package main provides the entry point for the bastion CLI.
package main

import (
	"os"

	"github.com/felixgeelhaar/bastion/internal/domain/config"
)

func main() {
	if err := Execute(); err != nil {
		printError(err)
		os.Exit(config.ExitCode(err))
	}
}
