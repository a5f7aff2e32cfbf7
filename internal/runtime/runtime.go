// Package runtime describes the contract between generated bundles and the
// runtime loader that executes them in the browser, and the server-side
// renderer that reads the manifest. Both collaborators are implemented
// outside this module; only the names and shapes they rely on live here.
package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Convention names the pieces of the lazy-load pattern: the helper module
// every lazy call depends on, the `<object>.<property>(...)` call shape, and
// the registration hook generated bundles call when they execute.
type Convention struct {
	// Name is used in error messages.
	Name string
	// Module is the import specifier of the runtime helper.
	Module string
	// Object is the property holding the loader, as in `app.bundles`.
	Object string
	// Method is the lazy-load method, as in `app.bundles.load`.
	Method string
	// Hook is the registration function exported by the helper.
	Hook string
}

// DefaultConvention matches `app.bundles.load('./view')` calls served by the
// `choo-bundles` helper.
var DefaultConvention = Convention{
	Name:   "bundlesplit",
	Module: "choo-bundles",
	Object: "bundles",
	Method: "load",
	Hook:   "_loaded",
}

// MayContainRuntime is a cheap check run before parsing a module.
func (c Convention) MayContainRuntime(src string) bool {
	return strings.Contains(src, c.Module)
}

// MayContainCalls is a cheap check run before parsing a module.
func (c Convention) MayContainCalls(src string) bool {
	return strings.Contains(src, c.Object+"."+c.Method)
}

// EntrySpecifier is the specifier the synthetic entry uses to require the
// bundle's target module.
const EntrySpecifier = "bundle"

// EntrySource returns the source of a bundle's synthetic entry module. It
// requires the target and reports it to the runtime under url, so a pending
// load resolves even when the script finishes before load() is called.
func (c Convention) EntrySource(url string) string {
	return fmt.Sprintf("require(%s).%s(%s, require(%s));",
		strconv.Quote(c.Module), c.Hook, strconv.Quote(url), strconv.Quote(EntrySpecifier))
}

// Module is whatever a lazily loaded bundle's target exports.
type Module any

// Loader is the browser-side loader. Load looks name up in the manifest and
// returns the module once its bundle has executed; concurrent calls for the
// same bundle URL share one fetch. New script and link tags are inserted in
// ascending manifest id order.
type Loader interface {
	Load(ctx context.Context, name string) (Module, error)
}

// Registrar is the hook generated bundles call on execution. It resolves,
// or pre-populates, the pending load for url.
type Registrar interface {
	Loaded(url string, value Module)
}

// Asset is a bundle referenced by a rendered page.
type Asset struct {
	Name string
	ID   string
	JS   string
	CSS  string
}

// AssetRenderer is the server-side rendering integration: it emits markup
// referencing each preloaded bundle and may inline critical CSS.
type AssetRenderer interface {
	Render(ctx context.Context, assets []Asset) (string, error)
}
