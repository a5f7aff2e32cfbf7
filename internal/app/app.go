package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/specialistvlad/bundlesplit/internal/config"
	"github.com/specialistvlad/bundlesplit/internal/notify"
	"github.com/specialistvlad/bundlesplit/internal/output"
	"github.com/specialistvlad/bundlesplit/internal/runtime"
	"github.com/specialistvlad/bundlesplit/internal/scan"
	"github.com/specialistvlad/bundlesplit/internal/scancache"
)

// Option customizes an App.
type Option func(*App)

// WithStdin sets where a graph of "-" is read from.
func WithStdin(r io.Reader) Option { return func(a *App) { a.stdin = r } }

// WithStdout sets where rows of "-" are written to.
func WithStdout(w io.Writer) Option { return func(a *App) { a.stdout = w } }

// WithOutput replaces the configured bundle output.
func WithOutput(o output.Output) Option { return func(a *App) { a.output = o } }

// WithNotifier replaces the configured build notifier.
func WithNotifier(n notify.Notifier) Option { return func(a *App) { a.notifier = n } }

// App holds what survives between builds: configuration, logger, outputs
// and the scan cache.
type App struct {
	logger   *slog.Logger
	config   *config.Model
	root     string
	conv     runtime.Convention
	stdin    io.Reader
	stdout   io.Writer
	output   output.Output
	notifier notify.Notifier
	cache    *scancache.Cache[*scan.Parsed]
	status   buildStatus
}

// NewApp validates cfg and prepares the collaborators of a build. Logs are
// written to logW.
func NewApp(logW io.Writer, cfg *config.Model, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, logW)
	logger.Debug("Logger configured successfully.")

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", cfg.Root, err)
	}

	cache, err := scancache.New[*scan.Parsed](0)
	if err != nil {
		return nil, err
	}

	conv := runtime.DefaultConvention
	conv.Module = cfg.Runtime

	a := &App{
		logger: logger,
		config: cfg,
		root:   root,
		conv:   conv,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		cache:  cache,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.output == nil {
		a.output, err = newOutput(cfg)
		if err != nil {
			return nil, err
		}
	}
	if cfg.HashNames {
		a.output = output.NewHashed(a.output)
	}
	if a.notifier == nil {
		a.notifier, err = newNotifier(cfg)
		if err != nil {
			return nil, err
		}
	}
	logger.Debug("Application configured.", "root", root, "runtime", conv.Module, "s3", cfg.S3 != nil, "notify", cfg.Notify != nil)
	return a, nil
}

// Config returns the configuration the app runs with.
func (a *App) Config() *config.Model { return a.config }

func newOutput(cfg *config.Model) (output.Output, error) {
	if s := cfg.S3; s != nil {
		o, err := output.NewS3(output.S3Config{
			Endpoint:  s.Endpoint,
			Region:    s.Region,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			Bucket:    s.Bucket,
			KeyPrefix: s.KeyPrefix,
			UseSSL:    s.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	return output.NewDir(cfg.Output), nil
}

func newNotifier(cfg *config.Model) (notify.Notifier, error) {
	n := cfg.Notify
	if n == nil {
		return notify.Nop, nil
	}
	sio, err := notify.NewSocketIO(notify.Config{
		URL:       n.URL,
		Namespace: n.Namespace,
		Event:     n.Event,
		Timeout:   n.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return sio, nil
}
