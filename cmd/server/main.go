package main

import (
	"fmt"
	"os"

	"github.com/spaceflow-dev/spaceflow/internal/config"
	"github.com/spaceflow-dev/spaceflow/internal/logger"
	"github.com/spaceflow-dev/spaceflow/internal/server"
)

var version = "dev" // Will be set during build with -ldflags

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.Init(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)

	// Create server
	srv, err := server.New(cfg, log, version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create server")
	}

	log.Info().
		Str("version", version).
		Str("auth_mode", cfg.Auth.Mode).
		Bool("demo", cfg.Auth.DemoMode).
		Msg("Starting SpaceFlow dashboard server...")

	// Start HTTP server (this blocks)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}
}
