package deps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/GriffinCanCode/AgentOS/docworker/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/docworker/internal/runtime"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxPackageSize bounds downloads and archive entries
const maxPackageSize = 32 << 20

// RegistryConfig defines where packages are resolved from
type RegistryConfig struct {
	Dir       string        // Local registry directory, empty disables name lookup
	RPS       float64       // Remote requests per second, 0 is unlimited
	Retries   int           // Retries per remote request
	Timeout   time.Duration // Per-request timeout
	UserAgent string
	MaxBytes  int // Download size limit, 0 means maxPackageSize

	// Consecutive failed fetches from one host before it is skipped for
	// HostCooldown, 0 disables the breaker
	HostFailures int
	HostCooldown time.Duration
}

// DefaultRegistryConfig returns the registry defaults
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		RPS:       5,
		Retries:   3,
		Timeout:   30 * time.Second,
		UserAgent: "docworker/1.0",

		HostFailures: 3,
		HostCooldown: 30 * time.Second,
	}
}

// Registry resolves descriptors from a local directory, local package files
// and remote locators
type Registry struct {
	config   RegistryConfig
	fsys     fs.FS
	client   *resty.Client
	limiter  *rate.Limiter
	breakers *resilience.Set
	logger   *zap.Logger
}

// NewRegistry creates a production-ready registry resolver
func NewRegistry(config RegistryConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}

	if config.MaxBytes <= 0 {
		config.MaxBytes = maxPackageSize
	}

	// retryablehttp owns retries (connection errors and 5xx); resty only
	// builds requests and bounds the body
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = config.Retries
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil // Disable logging

	restyClient := resty.NewWithClient(retryClient.StandardClient())
	restyClient.
		SetTimeout(config.Timeout).
		SetRetryCount(0).
		SetResponseBodyLimit(config.MaxBytes).
		SetHeader("User-Agent", config.UserAgent)

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RPS > 0 {
		burst := int(config.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RPS), burst)
	}

	r := &Registry{
		config:  config,
		client:  restyClient,
		limiter: limiter,
		logger:  logger,
	}
	if config.HostFailures > 0 {
		r.breakers = resilience.NewSet(resilience.Settings{
			Timeout: config.HostCooldown,
			ReadyToTrip: func(counts resilience.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(config.HostFailures)
			},
			IsFailure: hostFailure,
			OnStateChange: func(host string, from, to resilience.State) {
				logger.Warn("Package host breaker changed state",
					zap.String("host", host),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
	}
	if config.Dir != "" {
		r.fsys = os.DirFS(config.Dir)
	}
	return r
}

// Install resolves d and installs its modules into h. Packages already
// present in h are left alone.
func (r *Registry) Install(ctx context.Context, h *runtime.Handle, d Descriptor) error {
	if h.HasModule(d.Name) {
		r.logger.Debug("Dependency already installed", zap.String("dependency", d.Name))
		return nil
	}

	switch d.Source {
	case SourceRemote:
		data, err := r.fetch(ctx, d.Locator)
		if err != nil {
			return err
		}
		return installPackage(h, d.Name, d.Locator, data)

	case SourceFile:
		data, err := readFile(d.Locator)
		if err != nil {
			return err
		}
		return installPackage(h, d.Name, d.Locator, data)

	default:
		return r.installFromDir(h, d)
	}
}

// Hosts reports the breaker state of every remote host fetched so far
func (r *Registry) Hosts() []resilience.TargetState {
	if r.breakers == nil {
		return nil
	}
	return r.breakers.States()
}

func (r *Registry) fetch(ctx context.Context, locator string) ([]byte, error) {
	if r.breakers == nil {
		return r.download(ctx, locator)
	}

	u, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("invalid locator %q: %w", locator, err)
	}

	var data []byte
	err = r.breakers.Do(u.Host, func() error {
		var err error
		data, err = r.download(ctx, locator)
		return err
	})
	return data, err
}

// hostFailure reports whether err says something about the host's health.
// Missing or oversized packages and cancelled boots do not.
func hostFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, ErrNotFound) &&
		!errors.Is(err, ErrTooLarge) &&
		!errors.Is(err, context.Canceled)
}

func (r *Registry) download(ctx context.Context, locator string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	resp, err := r.client.R().SetContext(ctx).Get(locator)
	if errors.Is(err, resty.ErrResponseBodyTooLarge) {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, locator, r.config.MaxBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", locator, err)
	}
	switch {
	case resp.StatusCode() == 404:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
	case resp.IsError():
		return nil, fmt.Errorf("failed to fetch %s: %s", locator, resp.Status())
	}

	body := resp.Body()
	r.logger.Debug("Fetched package", zap.String("locator", locator), zap.Int("bytes", len(body)))
	return body, nil
}

// installFromDir looks a bare name up in the registry directory
func (r *Registry) installFromDir(h *runtime.Handle, d Descriptor) error {
	if r.fsys == nil {
		return fmt.Errorf("%w: %s (no registry directory)", ErrNotFound, d.Name)
	}

	name := d.Name
	if !fs.ValidPath(name) || strings.ContainsAny(name, "*?[{") {
		return fmt.Errorf("invalid package name %q", name)
	}

	// pinned archives beat any single-file module
	if version, ok := d.PinnedVersion(); ok {
		for _, pattern := range []string{
			name + "-" + version + ".{whl,tgz}",
			name + "-" + version + "-*.{whl,tgz}",
		} {
			match, err := r.firstMatch(pattern)
			if err != nil {
				return err
			}
			if match != "" {
				return r.installFile(h, name, match)
			}
		}
		return fmt.Errorf("%w: %s%s", ErrNotFound, name, d.Version)
	}

	if _, err := fs.Stat(r.fsys, name+".js"); err == nil {
		return r.installFile(h, name, name+".js")
	}

	entries, err := doublestar.Glob(r.fsys, name+"/**/*.js")
	if err != nil {
		return fmt.Errorf("failed to search registry: %w", err)
	}
	if len(entries) > 0 {
		return r.installTree(h, name, entries)
	}

	match, err := r.firstMatch(name + "-*.{whl,tgz}")
	if err != nil {
		return err
	}
	if match == "" {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return r.installFile(h, name, match)
}

// firstMatch returns the highest sorting match, so newer versions win
func (r *Registry) firstMatch(pattern string) (string, error) {
	matches, err := doublestar.Glob(r.fsys, pattern)
	if err != nil {
		return "", fmt.Errorf("failed to search registry: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

func (r *Registry) installFile(h *runtime.Handle, name, file string) error {
	data, err := readLimited(r.fsys, file)
	if err != nil {
		return err
	}
	return installPackage(h, name, path.Join(r.config.Dir, file), data)
}

func (r *Registry) installTree(h *runtime.Handle, name string, entries []string) error {
	files := make([]packageFile, 0, len(entries))
	for _, entry := range entries {
		data, err := readLimited(r.fsys, entry)
		if err != nil {
			return err
		}
		files = append(files, packageFile{path: strings.TrimPrefix(entry, name+"/"), src: data})
	}
	return installFiles(h, name, path.Join(r.config.Dir, name), files)
}

func readFile(name string) ([]byte, error) {
	info, err := os.Stat(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	if info.Size() > maxPackageSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, maxPackageSize)
	}
	return os.ReadFile(name)
}

func readLimited(fsys fs.FS, name string) ([]byte, error) {
	info, err := fs.Stat(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	if info.Size() > maxPackageSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, name, maxPackageSize)
	}
	return fs.ReadFile(fsys, name)
}
