// Package config defines the format-agnostic configuration model of a
// bundlesplit build, along with the Loader interface implemented by concrete
// configuration formats such as HCL.
//
// The `config.Model` is the single source of truth for the `app` package.
// Command-line flags are applied on top of a loaded model.
package config
