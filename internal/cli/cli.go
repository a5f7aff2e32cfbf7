package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/specialistvlad/bundlesplit/internal/app"
	"github.com/specialistvlad/bundlesplit/internal/config"
)

// DefaultConfigFile is loaded when present and no --config is given.
const DefaultConfigFile = "bundlesplit.hcl"

// Exit codes.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func usageError(err error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: err.Error(), Err: err}
}

func failure(err error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: err.Error(), Err: err}
}

// Env is what a command runs against.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	// Stderr receives logs and usage errors.
	Stderr io.Writer
	Loader config.Loader
	// Options are passed to every app the commands create.
	Options []app.Option
}

// flags are the command-line overrides of the configuration file.
type flags struct {
	configFile         string
	graph              string
	root               string
	output             string
	prefix             string
	filename           string
	manifest           string
	main               string
	rows               string
	rowsFormat         string
	hashNames          bool
	writeEmptyManifest bool
	runtime            string
	logLevel           string
	logFormat          string
	healthcheckPort    int
}

// NewRootCommand builds the command tree.
func NewRootCommand(env Env) *cobra.Command {
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}
	f := &flags{}

	root := &cobra.Command{
		Use:   "bundlesplit",
		Short: "Split a module graph into lazily loaded bundles",
		Long: `bundlesplit reads the module graph produced by a bundler, moves every
module that is only reached through app.bundles.load(...) calls into its own
bundle, and writes a manifest mapping each lazily loaded path to its bundle.

The graph is a JSON array or newline-delimited JSON of module rows.
Settings are read from ` + DefaultConfigFile + ` when present; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(env.Stdin)
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&f.configFile, "config", "c", "", "Path to the HCL configuration file.")
	pf.StringVarP(&f.graph, "graph", "g", "", "Module rows to read; '-' reads standard input.")
	pf.StringVar(&f.root, "root", "", "Project root lazy-load paths are made relative to.")
	pf.StringVarP(&f.output, "output", "o", "", "Directory bundles are written to.")
	pf.StringVar(&f.prefix, "prefix", "", "URL prefix of bundle filenames.")
	pf.StringVar(&f.filename, "filename", "", "Bundle filename template; %f is the module id.")
	pf.StringVarP(&f.manifest, "manifest", "m", "", "Path of the manifest file.")
	pf.StringVar(&f.main, "main", "", "Write the packed main bundle to this path; '-' writes standard output.")
	pf.StringVar(&f.rows, "rows", "", "Write the main graph rows to this path; '-' writes standard output.")
	pf.StringVar(&f.rowsFormat, "rows-format", "", "Format of --rows. Options: 'json' or 'ndjson'.")
	pf.BoolVar(&f.hashNames, "hash-names", false, "Append a content hash to bundle filenames.")
	pf.BoolVar(&f.writeEmptyManifest, "write-empty-manifest", false, "Write a manifest even when nothing was split.")
	pf.StringVar(&f.runtime, "runtime", "", "Module name of the runtime helper.")
	pf.StringVar(&f.logLevel, "log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&f.logFormat, "log-format", "", "Log output format. Options: 'text' or 'json'.")

	build := &cobra.Command{
		Use:   "build [GRAPH]",
		Short: "Split the graph once",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, env, f, args)
			if err != nil {
				return err
			}
			if _, err := a.Build(cmd.Context()); err != nil {
				return failure(err)
			}
			return nil
		},
	}

	watch := &cobra.Command{
		Use:   "watch [GRAPH]",
		Short: "Split the graph and rebuild whenever sources change",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, env, f, args)
			if err != nil {
				return err
			}
			if err := a.Watch(cmd.Context()); err != nil {
				return failure(err)
			}
			return nil
		},
	}
	watch.Flags().IntVar(&f.healthcheckPort, "healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")

	root.AddCommand(build, watch)
	return root
}

// Execute runs the command line and maps every error to an ExitError.
func Execute(ctx context.Context, env Env, args []string) error {
	root := NewRootCommand(env)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return usageError(err)
}

func newApp(cmd *cobra.Command, env Env, f *flags, args []string) (*app.App, error) {
	cfg, err := loadConfig(cmd.Context(), env.Loader, f.configFile)
	if err != nil {
		return nil, usageError(err)
	}
	applyFlags(cmd.Flags(), f, cfg)
	if len(args) > 0 {
		cfg.Graph = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return nil, usageError(err)
	}

	var opts []app.Option
	if env.Stdin != nil {
		opts = append(opts, app.WithStdin(env.Stdin))
	}
	if env.Stdout != nil {
		opts = append(opts, app.WithStdout(env.Stdout))
	}
	opts = append(opts, env.Options...)
	a, err := app.NewApp(env.Stderr, cfg, opts...)
	if err != nil {
		return nil, failure(err)
	}
	return a, nil
}

// loadConfig reads the configuration file, falling back to the defaults
// when no file was named and the default one does not exist.
func loadConfig(ctx context.Context, loader config.Loader, path string) (*config.Model, error) {
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return config.Defaults(), nil
		}
		path = DefaultConfigFile
	}
	if loader == nil {
		return nil, fmt.Errorf("no configuration loader for %s", path)
	}
	cfg, err := loader.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags copies the flags the user set over cfg.
func applyFlags(fs *pflag.FlagSet, f *flags, cfg *config.Model) {
	overrides := map[string]struct{ dst, v *string }{
		"graph":       {&cfg.Graph, &f.graph},
		"root":        {&cfg.Root, &f.root},
		"output":      {&cfg.Output, &f.output},
		"prefix":      {&cfg.Prefix, &f.prefix},
		"filename":    {&cfg.Filename, &f.filename},
		"manifest":    {&cfg.Manifest, &f.manifest},
		"main":        {&cfg.Main, &f.main},
		"rows":        {&cfg.Rows, &f.rows},
		"rows-format": {&cfg.RowsFormat, &f.rowsFormat},
		"runtime":     {&cfg.Runtime, &f.runtime},
		"log-level":   {&cfg.Log.Level, &f.logLevel},
		"log-format":  {&cfg.Log.Format, &f.logFormat},
	}
	for name, o := range overrides {
		if fs.Changed(name) {
			*o.dst = *o.v
		}
	}
	if fs.Changed("hash-names") {
		cfg.HashNames = f.hashNames
	}
	if fs.Changed("write-empty-manifest") {
		cfg.WriteEmptyManifest = f.writeEmptyManifest
	}
	if fs.Changed("healthcheck-port") {
		if cfg.Watch == nil {
			cfg.Watch = &config.Watch{}
			config.DefaultWatch(cfg.Watch)
		}
		cfg.Watch.HealthcheckPort = f.healthcheckPort
	}
}
