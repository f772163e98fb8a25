package deps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/protocol"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/runtime"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/shared/fault"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("package not found")
	ErrTooLarge = errors.New("package too large")
)

// Resolver installs a single dependency into a runtime
type Resolver interface {
	Install(ctx context.Context, h *runtime.Handle, d Descriptor) error
}

// Failure records one dependency that could not be installed
type Failure struct {
	Name string
	Err  error
}

// Report summarizes an install run
type Report struct {
	Installed []string
	Failed    []Failure
	Duration  time.Duration
}

// FailedNames returns the display names of failed dependencies in order
func (r Report) FailedNames() []string {
	out := make([]string, len(r.Failed))
	for i, f := range r.Failed {
		out[i] = f.Name
	}
	return out
}

// InstallingStatus is the status line posted before a dependency installs
func InstallingStatus(name string) string {
	return "Installing " + name
}

// FailedStatus is the status line posted when a dependency fails
func FailedStatus(name string) string {
	return "Error installing " + name
}

// Installer installs dependency lists sequentially
type Installer struct {
	resolver Resolver
	logger   *zap.Logger
}

// NewInstaller creates an installer backed by resolver
func NewInstaller(resolver Resolver, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{resolver: resolver, logger: logger}
}

// InstallAll installs descs in order. A failing dependency is reported on
// port and skipped; the returned error is only set when the run itself
// could not continue (port closed or ctx done).
func (i *Installer) InstallAll(ctx context.Context, h *runtime.Handle, port protocol.Port, descs []Descriptor) (Report, error) {
	start := time.Now()
	var report Report

	for _, d := range descs {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		name := d.DisplayName()
		if err := port.Post(protocol.Status(InstallingStatus(name))); err != nil {
			report.Duration = time.Since(start)
			return report, fmt.Errorf("failed to post status: %w", err)
		}

		if err := i.resolver.Install(ctx, h, d); err != nil {
			ferr := fault.New(fault.KindInstall).Subject(name).Cause(err).Build()
			i.logger.Warn("Dependency install failed",
				zap.String("dependency", d.Raw),
				zap.String("source", d.Source.String()),
				zap.Error(ferr))
			report.Failed = append(report.Failed, Failure{Name: name, Err: ferr})

			if err := port.Post(protocol.Status(FailedStatus(name))); err != nil {
				report.Duration = time.Since(start)
				return report, fmt.Errorf("failed to post status: %w", err)
			}
			continue
		}

		i.logger.Debug("Dependency installed", zap.String("dependency", d.Raw))
		report.Installed = append(report.Installed, name)
	}

	report.Duration = time.Since(start)
	return report, nil
}
