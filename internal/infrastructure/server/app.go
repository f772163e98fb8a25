package server

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/deps"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/executor"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/config"
)

// App is what every worker boots: one payload and its dependencies
type App struct {
	Payload      executor.Payload
	Dependencies []deps.Descriptor
}

// LoadApp resolves the payload and dependency list from the worker config.
// fallback is served when no payload file is configured. Manifest
// dependencies come first, then the DEPENDENCIES list.
func LoadApp(cfg config.WorkerConfig, fallback executor.Payload) (App, error) {
	app := App{Payload: fallback}

	if cfg.AppPayload != "" {
		src, err := os.ReadFile(cfg.AppPayload)
		if err != nil {
			return App{}, fmt.Errorf("failed to read app payload: %w", err)
		}
		app.Payload = executor.Payload{
			Name:   filepath.Base(cfg.AppPayload),
			Source: string(src),
		}
	}

	if cfg.DepsManifest != "" {
		manifest, err := deps.LoadManifest(cfg.DepsManifest)
		if err != nil {
			return App{}, err
		}
		descs, err := manifest.Descriptors()
		if err != nil {
			return App{}, err
		}
		app.Dependencies = append(app.Dependencies, descs...)
	}

	descs, err := deps.ParseAll(cfg.Dependencies)
	if err != nil {
		return App{}, err
	}
	app.Dependencies = append(app.Dependencies, descs...)

	return app, nil
}
