package config

import "context"

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads the configuration file at path and translates it into the
	// format-agnostic model. Values the file does not set keep the defaults.
	Load(ctx context.Context, path string) (*Model, error)
}
