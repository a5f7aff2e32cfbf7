// Package app contains the core application logic. It wires configuration
// into a build: reading the module graph, splitting it, writing bundles and
// the manifest, and announcing the result. It is decoupled from any
// specific entrypoint like a CLI.
package app
