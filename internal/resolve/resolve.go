// Package resolve maps an import specifier to the file it names.
//
// The splitter only needs to know which file a lazy-load call points at; the
// full resolution algorithm of the host bundler stays with the host. FS is a
// small Node-style implementation good enough for relative paths, project
// root relative paths and plain node_modules packages.
package resolve

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver resolves specifier as written in a module located in basedir.
type Resolver interface {
	Resolve(specifier, basedir string) (string, error)
}

// Func adapts a function to the Resolver interface.
type Func func(specifier, basedir string) (string, error)

// Resolve implements Resolver.
func (f Func) Resolve(specifier, basedir string) (string, error) { return f(specifier, basedir) }

// ErrNotFound is wrapped by Error when no candidate file exists.
var ErrNotFound = errors.New("cannot find module")

// ErrBuiltin is wrapped by Error for Node core modules, which have no file.
var ErrBuiltin = errors.New("core module has no file")

// Error describes a failed resolution.
type Error struct {
	Specifier string
	Basedir   string
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %q from %s: %v", e.Specifier, e.Basedir, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var defaultExtensions = []string{".js", ".json"}

// FS resolves against the local file system.
type FS struct {
	// Root is the project root used for root-relative specifiers such as
	// the portable paths written back into rewritten call sites.
	Root string
	// Extensions are tried in order after the bare path. Defaults to .js and .json.
	Extensions []string
}

// NewFS returns a file system resolver rooted at root.
func NewFS(root string) *FS {
	return &FS{Root: root}
}

// Resolve implements Resolver.
func (r *FS) Resolve(specifier, basedir string) (string, error) {
	if specifier == "" {
		return "", &Error{Specifier: specifier, Basedir: basedir, Err: ErrNotFound}
	}
	if isBuiltin(specifier) {
		return "", &Error{Specifier: specifier, Basedir: basedir, Err: ErrBuiltin}
	}

	if isPathLike(specifier) {
		p := specifier
		if !filepath.IsAbs(p) {
			p = filepath.Join(basedir, filepath.FromSlash(p))
		}
		if found, ok := r.loadAny(p); ok {
			return found, nil
		}
		return "", &Error{Specifier: specifier, Basedir: basedir, Err: ErrNotFound}
	}

	if r.Root != "" {
		if found, ok := r.loadFile(filepath.Join(r.Root, filepath.FromSlash(specifier))); ok {
			return found, nil
		}
	}

	for dir := basedir; ; dir = filepath.Dir(dir) {
		if filepath.Base(dir) != "node_modules" {
			if found, ok := r.loadAny(filepath.Join(dir, "node_modules", filepath.FromSlash(specifier))); ok {
				return found, nil
			}
		}
		if parent := filepath.Dir(dir); parent == dir {
			break
		}
	}
	return "", &Error{Specifier: specifier, Basedir: basedir, Err: ErrNotFound}
}

func (r *FS) extensions() []string {
	if len(r.Extensions) > 0 {
		return r.Extensions
	}
	return defaultExtensions
}

func (r *FS) loadAny(p string) (string, bool) {
	if found, ok := r.loadFile(p); ok {
		return found, true
	}
	return r.loadDir(p)
}

func (r *FS) loadFile(p string) (string, bool) {
	if isFile(p) {
		return filepath.Clean(p), true
	}
	for _, ext := range r.extensions() {
		if isFile(p + ext) {
			return filepath.Clean(p + ext), true
		}
	}
	return "", false
}

func (r *FS) loadDir(p string) (string, bool) {
	if data, err := os.ReadFile(filepath.Join(p, "package.json")); err == nil {
		var pkg struct {
			Main string `json:"main"`
		}
		if json.Unmarshal(data, &pkg) == nil && pkg.Main != "" {
			main := filepath.Join(p, filepath.FromSlash(pkg.Main))
			if found, ok := r.loadFile(main); ok {
				return found, true
			}
			if found, ok := r.loadFile(filepath.Join(main, "index")); ok {
				return found, true
			}
		}
	}
	return r.loadFile(filepath.Join(p, "index"))
}

func isFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func isPathLike(spec string) bool {
	return spec == "." || spec == ".." ||
		strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") ||
		strings.HasPrefix(spec, "/") || filepath.IsAbs(spec)
}
