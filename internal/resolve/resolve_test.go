package resolve

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles creates the given files (relative path -> content) under dir.
func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestFS_Resolve(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"app.js":                             "",
		"views/lazy.js":                      "",
		"views/list/index.js":                "",
		"data.json":                          "{}",
		"node_modules/pkg/package.json":      `{"main": "lib/main"}`,
		"node_modules/pkg/lib/main.js":       "",
		"node_modules/plain/index.js":        "",
		"views/node_modules/nested/index.js": "",
	})
	r := NewFS(root)
	views := filepath.Join(root, "views")

	testCases := []struct {
		name      string
		specifier string
		basedir   string
		want      string
	}{
		{"relative with extension probing", "./views/lazy", root, "views/lazy.js"},
		{"relative exact", "./lazy.js", views, "views/lazy.js"},
		{"parent directory", "../app", views, "app.js"},
		{"directory index", "./list", views, "views/list/index.js"},
		{"json extension", "./data", root, "data.json"},
		{"root relative fallback", "views/lazy.js", views, "views/lazy.js"},
		{"package main", "pkg", views, "node_modules/pkg/lib/main.js"},
		{"package index", "plain", root, "node_modules/plain/index.js"},
		{"nearest node_modules wins", "nested", views, "views/node_modules/nested/index.js"},
		{"absolute", filepath.Join(root, "app.js"), views, "app.js"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.specifier, tc.basedir)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(root, filepath.FromSlash(tc.want)), got)
		})
	}
}

func TestFS_ResolveErrors(t *testing.T) {
	root := t.TempDir()
	r := NewFS(root)

	_, err := r.Resolve("./missing", root)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "./missing", rerr.Specifier)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve("fs/promises", root)
	assert.ErrorIs(t, err, ErrBuiltin)

	_, err = r.Resolve("node:path", root)
	assert.ErrorIs(t, err, ErrBuiltin)

	_, err = r.Resolve("", root)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFunc(t *testing.T) {
	r := Func(func(spec, dir string) (string, error) { return dir + "/" + spec, nil })
	got, err := r.Resolve("x.js", "/a")
	require.NoError(t, err)
	assert.Equal(t, "/a/x.js", got)
}
