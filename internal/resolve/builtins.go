package resolve

import "strings"

// nodeBuiltins lists Node.js core modules by top-level name.
var nodeBuiltins = map[string]bool{
	"assert":              true,
	"async_hooks":         true,
	"buffer":              true,
	"child_process":       true,
	"cluster":             true,
	"console":             true,
	"constants":           true,
	"crypto":              true,
	"dgram":               true,
	"diagnostics_channel": true,
	"dns":                 true,
	"domain":              true,
	"events":              true,
	"fs":                  true,
	"http":                true,
	"http2":               true,
	"https":               true,
	"inspector":           true,
	"module":              true,
	"net":                 true,
	"os":                  true,
	"path":                true,
	"perf_hooks":          true,
	"process":             true,
	"punycode":            true,
	"querystring":         true,
	"readline":            true,
	"repl":                true,
	"stream":              true,
	"string_decoder":      true,
	"timers":              true,
	"tls":                 true,
	"tty":                 true,
	"url":                 true,
	"util":                true,
	"v8":                  true,
	"vm":                  true,
	"worker_threads":      true,
	"zlib":                true,
}

// isBuiltin reports whether spec names a Node core module, with or without
// the node: scheme and with or without a subpath such as fs/promises.
func isBuiltin(spec string) bool {
	if rest, ok := strings.CutPrefix(spec, "node:"); ok {
		return rest != ""
	}
	name, _, _ := strings.Cut(spec, "/")
	return nodeBuiltins[name]
}
