package main

import (
	"context"
	_ "embed"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/executor"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/server"
)

//go:embed apps/dashboard.js
var dashboard string

func main() {
	// Load configuration from environment
	cfg := config.LoadOrDefault()

	// CLI flags override environment
	port := flag.String("port", cfg.Server.Port, "Server port")
	payload := flag.String("app", cfg.Worker.AppPayload, "Application payload file")
	manifest := flag.String("deps", cfg.Worker.DepsManifest, "Dependency manifest (yaml, toml or json)")
	registry := flag.String("registry", cfg.Registry.Dir, "Local package registry directory")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Worker.AppPayload = *payload
	cfg.Worker.DepsManifest = *manifest
	cfg.Registry.Dir = *registry
	cfg.Logging.Development = *dev

	app, err := server.LoadApp(cfg.Worker, executor.Payload{Name: "dashboard.js", Source: dashboard})
	if err != nil {
		log.Fatalf("Failed to load app: %v", err)
	}

	srv, err := server.NewServer(cfg, app)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
