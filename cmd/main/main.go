package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"chart-hub/src/config"
	"chart-hub/src/logger"
	"chart-hub/src/server"
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "../../config/default.yaml", "path to config file (.yaml or .toml)")
	seed := flag.Bool("seed", false, "write the demo charts into the configured SQL store before serving")
	flag.Parse()

	// Load config
	conf, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(conf, conf.Name)

	// Setup components
	source, closeSource, err := setupSource(conf.MConfig, appLogger, *seed)
	if err != nil {
		appLogger.Critical("Failed to set up source %q: %v", conf.Source.Type, err)
	}
	defer closeSource()

	hub := server.NewHub(source, appLogger.Named("Hub"), server.HubOptionsFromConfig(conf.MConfig))
	srv := server.NewFastAPIServer(conf.MConfig, hub, appLogger.Named("FastAPIServer"))
	health := setupHealth(conf.MConfig, hub)

	// Start servers
	errCh := startServers(srv, health, appLogger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received %s, shutting down...", sig)
	case err := <-errCh:
		appLogger.Error("Server failed: %v", err)
	}

	stopServers(srv, health, appLogger)
	appLogger.Info("Shutdown complete.")
}
