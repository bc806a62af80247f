// Command navigate drives the site router headlessly: it walks a list of
// paths, saving and restoring page state in a resumable session, and
// prints where it ended up.
package main

import (
	"fmt"
	"os"

	"safety-app/internal/config"
	"safety-app/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// stdout carries results, logs go to stderr
	log := logger.NewWithWriter(cfg.LogLevel, os.Stderr)
	defer func() { _ = log.Sync() }()

	if err := newRootCmd(cfg, log).Execute(); err != nil {
		os.Exit(1)
	}
}
