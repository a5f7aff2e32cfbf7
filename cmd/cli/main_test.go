package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/bundlesplit/internal/cli"
)

func TestRun_InvalidConfigFile(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	invalidHCL := `
		s3 {
			bucket = "assets"
		// Missing closing brace here
	`
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "bundlesplit.hcl")
	require.NoError(t, os.WriteFile(filePath, []byte(invalidHCL), 0o600), "failed to set up test file")

	var stdout, stderr bytes.Buffer

	// --- Act ---
	runErr := run(context.Background(), strings.NewReader(""), &stdout, &stderr, []string{"build", "--config", filePath})

	// --- Assert ---
	require.Error(t, runErr)
	exitErr, ok := runErr.(*cli.ExitError)
	require.True(t, ok, "run() should return an ExitError")
	require.Equal(t, cli.ExitUsage, exitErr.Code)
	require.Contains(t, exitErr.Message, "failed to parse HCL file")
}

func TestRun_Help(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), nil, &stdout, &stderr, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error for help")
	require.Contains(t, stdout.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), nil, &stdout, &stderr, []string{"build", "--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "unknown flag: --this-is-not-a-valid-flag")
}

func TestRun_BuildFromStdin(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "bundles.manifest.json")
	rows := `{"id": 1, "file": "/app/index.js", "source": "module.exports = 1", "deps": {}, "entry": true}` + "\n"

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), strings.NewReader(rows), &stdout, &stderr, []string{
		"build", "-",
		"--root", dir,
		"--output", dir,
		"--manifest", manifestPath,
		"--write-empty-manifest",
		"--rows", "-",
		"--rows-format", "ndjson",
	})
	require.NoError(t, err, stderr.String())

	require.Contains(t, stdout.String(), `"id":1`)
	data, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(data))
}
