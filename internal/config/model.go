package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Model is the unified representation of a build's configuration.
type Model struct {
	// Graph is the module rows file; "-" reads standard input.
	Graph string
	// Root is the project root lazy-load paths are made relative to.
	Root string
	// Output is the directory bundles are written to.
	Output string
	// Prefix is prepended to bundle filenames to form URLs.
	Prefix string
	// Filename is the bundle filename template; %f is the module id.
	Filename string
	// Manifest is the path of the manifest file.
	Manifest string
	// Main, when set, receives the packed main bundle.
	Main string
	// Rows, when set, receives the rewritten main graph rows; "-" writes
	// standard output.
	Rows string
	// RowsFormat is json or ndjson.
	RowsFormat string
	// HashNames appends a content hash to bundle filenames.
	HashNames bool
	// WriteEmptyManifest writes a manifest for builds without lazy loads.
	WriteEmptyManifest bool
	// Runtime is the module name of the runtime helper.
	Runtime string

	S3     *S3
	Notify *Notify
	Watch  *Watch
	Log    Log
}

// S3 moves bundle output to an S3-compatible bucket.
type S3 struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	KeyPrefix string
	UseSSL    bool
}

// Notify announces finished builds to a socket.io server.
type Notify struct {
	URL       string
	Namespace string
	Event     string
	Timeout   time.Duration
}

// Watch configures rebuilds on file changes.
type Watch struct {
	Paths    []string
	Patterns []string
	Ignore   []string
	Debounce time.Duration
	// HealthcheckPort serves /health while watching; 0 disables it.
	HealthcheckPort int
}

// Log configures the logger.
type Log struct {
	Level  string
	Format string
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Model {
	return &Model{
		Graph:      "-",
		Root:       ".",
		Output:     ".",
		Prefix:     "/",
		Filename:   "bundle.%f.js",
		Manifest:   "./bundles.manifest.json",
		RowsFormat: "json",
		Runtime:    "choo-bundles",
		Log:        Log{Level: "info", Format: "text"},
	}
}

// DefaultNotify fills the optional fields of a notify block.
func DefaultNotify(n *Notify) {
	if n.Namespace == "" {
		n.Namespace = "/"
	}
	if n.Event == "" {
		n.Event = "bundles:built"
	}
	if n.Timeout <= 0 {
		n.Timeout = 5 * time.Second
	}
}

// DefaultWatch fills the optional fields of a watch block.
func DefaultWatch(w *Watch) {
	if len(w.Patterns) == 0 {
		w.Patterns = []string{"**/*.js"}
	}
	if len(w.Ignore) == 0 {
		w.Ignore = []string{"**/node_modules/**"}
	}
	if w.Debounce <= 0 {
		w.Debounce = 300 * time.Millisecond
	}
}

// Validate reports the first invalid field.
func (m *Model) Validate() error {
	if m.Graph == "" {
		return errors.New("graph is a required configuration field and cannot be empty")
	}
	if m.Root == "" {
		return errors.New("root cannot be empty")
	}
	if m.Output == "" && m.S3 == nil {
		return errors.New("output cannot be empty unless an s3 block is configured")
	}
	if m.Manifest == "" {
		return errors.New("manifest cannot be empty")
	}
	if m.Main == "-" && m.Rows == "-" {
		return errors.New("main and rows cannot both be written to standard output")
	}
	switch m.RowsFormat {
	case "json", "ndjson":
	default:
		return fmt.Errorf("invalid rows_format %q: must be 'json' or 'ndjson'", m.RowsFormat)
	}
	switch strings.ToLower(m.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", m.Log.Level)
	}
	switch strings.ToLower(m.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be 'text' or 'json'", m.Log.Format)
	}
	if m.S3 != nil && m.S3.Bucket == "" {
		return errors.New("s3 block requires a bucket")
	}
	if m.Watch != nil && (m.Watch.HealthcheckPort < 0 || m.Watch.HealthcheckPort > 65535) {
		return fmt.Errorf("invalid watch healthcheck_port %d", m.Watch.HealthcheckPort)
	}
	if m.Notify != nil && m.Notify.URL == "" {
		return errors.New("notify block requires a url")
	}
	return nil
}
