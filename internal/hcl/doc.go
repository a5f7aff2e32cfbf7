// Package hcl provides the concrete HCL implementation of the configuration
// Loader defined in the `config` package. It parses a bundlesplit.hcl file,
// evaluates its expressions with a small function library and translates
// the result into the format-agnostic model.
package hcl
