package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, cfg Config) (context.CancelFunc, <-chan error) {
	t.Helper()
	w, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errCh
}

func TestWatcher_DebouncesChanges(t *testing.T) {
	dir := t.TempDir()

	var (
		mu      sync.Mutex
		calls   int
		changed []string
	)
	done := make(chan struct{})

	cancel, errCh := startWatcher(t, Config{
		BaseDir:  dir,
		Patterns: []string{"**/*.js"},
		Debounce: 100 * time.Millisecond,
		OnChange: func(_ context.Context, paths []string) error {
			mu.Lock()
			defer mu.Unlock()
			calls++
			changed = append(changed, paths...)
			if calls == 1 {
				close(done)
			}
			return nil
		},
	})

	for _, name := range []string{"a.js", "b.js", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
	time.Sleep(200 * time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
	assert.ElementsMatch(t, []string{"a.js", "b.js"}, changed)
}

func TestWatcher_IgnoresConfiguredPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "dist"), 0o755))

	fired := make(chan []string, 4)
	_, _ = startWatcher(t, Config{
		BaseDir:  dir,
		Ignore:   []string{"dist/**"},
		Debounce: 50 * time.Millisecond,
		OnChange: func(_ context.Context, paths []string) error {
			fired <- paths
			return nil
		},
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "dist", "bundle.1.js"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.js"), []byte("x"), 0o644))

	select {
	case paths := <-fired:
		assert.Equal(t, []string{"index.js"}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func TestWatcher_RunTwice(t *testing.T) {
	w, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.ErrorIs(t, w.Run(ctx), ErrStarted)
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(Config{BaseDir: t.TempDir(), Patterns: []string{"[unclosed"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid watch pattern")
}

func TestNew_MissingPath(t *testing.T) {
	_, err := New(Config{BaseDir: t.TempDir(), Paths: []string{"missing"}})
	require.Error(t, err)
}

func TestMatchAny(t *testing.T) {
	assert.True(t, matchAny(defaultIgnores, "node_modules/x/index.js"))
	assert.True(t, matchAny(defaultIgnores, "src/.git/HEAD"))
	assert.False(t, matchAny(defaultIgnores, "src/index.js"))
}
