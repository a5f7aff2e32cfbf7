package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/bundlesplit/internal/config"
	"github.com/specialistvlad/bundlesplit/internal/graph"
	"github.com/specialistvlad/bundlesplit/internal/manifest"
	"github.com/specialistvlad/bundlesplit/internal/notify"
	"github.com/specialistvlad/bundlesplit/internal/rowio"
	"github.com/specialistvlad/bundlesplit/internal/split"
)

// fixture lays out a project with an entry that lazy loads c.js and
// returns its root together with the graph rows.
func fixture(t *testing.T) (string, []*graph.ModuleRow) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"a.js": "var bundles = require('choo-bundles')\napp.bundles.load('./c')\n",
		"c.js": "module.exports = require('./d')",
		"d.js": "module.exports = 'from d'",
	}
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0o644))
	}
	order := 0
	rows := []*graph.ModuleRow{
		{ID: "rt", File: filepath.Join(root, "node_modules", "choo-bundles", "index.js"), Source: "module.exports = {}"},
		{
			ID: "a", File: filepath.Join(root, "a.js"), Entry: true, Order: &order,
			Source: files["a.js"],
			Deps:   map[string]graph.ModuleID{"choo-bundles": "rt", "./c": "c"},
		},
		{ID: "c", File: filepath.Join(root, "c.js"), Source: files["c.js"], Deps: map[string]graph.ModuleID{"./d": "d"}},
		{ID: "d", File: filepath.Join(root, "d.js"), Source: files["d.js"]},
	}
	return root, rows
}

func writeGraph(t *testing.T, dir string, rows []*graph.ModuleRow) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, rowio.Write(&buf, rows, rowio.JSON))
	path := filepath.Join(dir, "deps.json")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func baseConfig(root, graphPath string) *config.Model {
	cfg := config.Defaults()
	cfg.Graph = graphPath
	cfg.Root = root
	cfg.Output = filepath.Join(root, "dist")
	cfg.Manifest = filepath.Join(root, "dist", "bundles.manifest.json")
	return cfg
}

type recorder struct {
	mu     sync.Mutex
	builds []notify.Build
	err    error
}

func (r *recorder) Notify(_ context.Context, b notify.Build) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds = append(r.builds, b)
	return r.err
}

func TestBuild_WritesBundlesManifestAndMain(t *testing.T) {
	root, rows := fixture(t)
	cfg := baseConfig(root, writeGraph(t, t.TempDir(), rows))
	cfg.Main = filepath.Join(root, "dist", "main.js")
	rec := &recorder{}

	a, _ := SetupAppTest(t, cfg, WithNotifier(rec))
	report, err := a.Build(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Split)
	assert.Equal(t, 2, report.Rows)
	require.Len(t, report.Bundles, 1)
	assert.Equal(t, "/bundle.c.js", report.Bundles[0].URL)

	bundleSrc, err := os.ReadFile(filepath.Join(root, "dist", "bundle.c.js"))
	require.NoError(t, err)
	assert.Contains(t, string(bundleSrc), "from d")
	assert.Contains(t, string(bundleSrc), `_loaded("/bundle.c.js"`)

	m, err := manifest.Read(cfg.Manifest)
	require.NoError(t, err)
	entry, ok := m.Lookup("c.js")
	require.True(t, ok)
	assert.Equal(t, manifest.Entry{ID: "c", JS: "/bundle.c.js"}, entry)

	mainSrc, err := os.ReadFile(cfg.Main)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(mainSrc), "require="))
	assert.Contains(t, string(mainSrc), "app.bundles.load('c.js')")
	assert.NotContains(t, string(mainSrc), "from d")

	require.Len(t, rec.builds, 1)
	assert.Equal(t, report.BuildID, rec.builds[0].ID)
	assert.True(t, rec.builds[0].Split)
}

func TestBuild_HashNames(t *testing.T) {
	root, rows := fixture(t)
	cfg := baseConfig(root, writeGraph(t, t.TempDir(), rows))
	cfg.HashNames = true

	a, _ := SetupAppTest(t, cfg, WithNotifier(notify.Nop))
	report, err := a.Build(context.Background())
	require.NoError(t, err)

	url := report.Bundles[0].URL
	assert.Regexp(t, `^/bundle\.c\.[0-9a-f]{8}\.js$`, url)

	body, err := os.ReadFile(filepath.Join(root, "dist", strings.TrimPrefix(url, "/")))
	require.NoError(t, err)
	assert.Contains(t, string(body), url, "the bundle registers under its hashed url")

	m, err := manifest.Read(cfg.Manifest)
	require.NoError(t, err)
	entry, _ := m.Lookup("c.js")
	assert.Equal(t, url, entry.JS)
}

func TestBuild_StdinGraphAndStdoutRows(t *testing.T) {
	root, rows := fixture(t)
	var in bytes.Buffer
	require.NoError(t, rowio.Write(&in, rows, rowio.NDJSON))

	cfg := baseConfig(root, "-")
	cfg.Rows = "-"
	cfg.RowsFormat = "ndjson"
	var out bytes.Buffer

	a, _ := SetupAppTest(t, cfg, WithStdin(&in), WithStdout(&out), WithNotifier(notify.Nop))
	_, err := a.Build(context.Background())
	require.NoError(t, err)

	got, err := rowio.ReadAll(&out)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, graph.ModuleID("rt"), got[0].ID)
	assert.True(t, got[0].Expose)
	assert.NotContains(t, got[1].Deps, "./c")
}

func TestBuild_NotifyFailureIsNotFatal(t *testing.T) {
	root, rows := fixture(t)
	cfg := baseConfig(root, writeGraph(t, t.TempDir(), rows))
	rec := &recorder{err: errors.New("connection refused")}

	a, logs := SetupAppTest(t, cfg, WithNotifier(rec))
	_, err := a.Build(context.Background())
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "Failed to announce build.")
}

func TestBuild_MissingRuntime(t *testing.T) {
	root, rows := fixture(t)
	entry := rows[1]
	entry.Source = "app.bundles.load('./c')\n"
	delete(entry.Deps, "choo-bundles")
	cfg := baseConfig(root, writeGraph(t, t.TempDir(), rows[1:]))

	a, _ := SetupAppTest(t, cfg, WithNotifier(notify.Nop))
	_, err := a.Build(context.Background())

	var missing *split.MissingRuntimeError
	require.ErrorAs(t, err, &missing)
	_, statErr := os.Stat(cfg.Manifest)
	assert.True(t, os.IsNotExist(statErr), "no manifest after a failed build")
}

func TestBuild_MissingGraph(t *testing.T) {
	cfg := baseConfig(t.TempDir(), filepath.Join(t.TempDir(), "missing.json"))
	a, _ := SetupAppTest(t, cfg, WithNotifier(notify.Nop))
	_, err := a.Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open graph")
}

func TestNewApp_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.RowsFormat = "xml"
	_, err := NewApp(&SafeBuffer{}, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestOwnOutputs(t *testing.T) {
	root := t.TempDir()
	cfg := baseConfig(root, "-")
	cfg.Main = filepath.Join(root, "public", "main.js")
	cfg.Rows = "-"

	a, _ := SetupAppTest(t, cfg, WithNotifier(notify.Nop))
	assert.ElementsMatch(t, []string{
		"dist/bundle.*.js",
		"dist/bundles.manifest.json",
		"public/main.js",
	}, a.ownOutputs())
}

func TestBundleGlob(t *testing.T) {
	assert.Equal(t, "bundle.*.js", bundleGlob("bundle.%f.js"))
	assert.Equal(t, "chunks/*.js", bundleGlob("chunks/%f.js"))
	assert.Equal(t, "bundle.*.js", bundleGlob("static.js"))
}

func TestHealthHandler(t *testing.T) {
	cfg := baseConfig(t.TempDir(), "-")
	a, _ := SetupAppTest(t, cfg, WithNotifier(notify.Nop))

	get := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		a.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rec
	}

	assert.Equal(t, http.StatusServiceUnavailable, get().Code)

	a.status.record(&Report{BuildID: "b1"}, nil)
	rec := get()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK b1\n", rec.Body.String())

	a.status.record(nil, errors.New("boom"))
	rec = get()
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")
}

func TestReport_ManifestIsJSON(t *testing.T) {
	root, rows := fixture(t)
	cfg := baseConfig(root, writeGraph(t, t.TempDir(), rows))
	a, _ := SetupAppTest(t, cfg, WithNotifier(notify.Nop))
	report, err := a.Build(context.Background())
	require.NoError(t, err)

	data, err := json.Marshal(report.Manifest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"c.js": {"id": "c", "js": "/bundle.c.js"}}`, string(data))
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.builds)
}

func TestWatch_RebuildsOnChange(t *testing.T) {
	root, rows := fixture(t)
	cfg := baseConfig(root, writeGraph(t, t.TempDir(), rows))
	cfg.Watch = &config.Watch{Debounce: 50 * time.Millisecond}
	rec := &recorder{}

	a, _ := SetupAppTest(t, cfg, WithNotifier(rec))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.Watch(ctx) }()

	require.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "d.js"), []byte("module.exports = 'changed'"), 0o644))
	require.Eventually(t, func() bool { return rec.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	// Writing bundles and the manifest must not trigger further builds.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 2, rec.count())

	cancel()
	require.NoError(t, <-errCh)
}
