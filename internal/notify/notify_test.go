package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/bundlesplit/internal/graph"
	"github.com/specialistvlad/bundlesplit/internal/manifest"
)

type fakeConn struct {
	events   []string
	payloads []any
	closed   bool
}

func (f *fakeConn) emit(event string, payload any) {
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
}

func (f *fakeConn) close() { f.closed = true }

func TestNewSocketIO_Validation(t *testing.T) {
	_, err := NewSocketIO(Config{})
	require.Error(t, err)

	_, err = NewSocketIO(Config{URL: "localhost:3000"})
	require.Error(t, err)

	n, err := NewSocketIO(Config{URL: "http://localhost:3000/socket.io/"})
	require.NoError(t, err)
	assert.Equal(t, "/", n.cfg.Namespace)
	assert.Equal(t, "bundles:built", n.cfg.Event)
	assert.Equal(t, 5*time.Second, n.cfg.Timeout)
}

func TestSocketIO_EmitsPayloadAndDisconnects(t *testing.T) {
	m := manifest.New()
	m.Add("./pages/a.js", manifest.Entry{ID: graph.ModuleID("3"), JS: "/bundle.3.js"})

	n, err := NewSocketIO(Config{URL: "http://localhost:3000", Event: "reload"})
	require.NoError(t, err)
	fc := &fakeConn{}
	n.dial = func(context.Context, Config) (conn, error) { return fc, nil }

	require.NoError(t, n.Notify(context.Background(), Build{ID: "b1", Split: true, Manifest: m}))

	assert.Equal(t, []string{"reload"}, fc.events)
	assert.True(t, fc.closed)
	payload := fc.payloads[0].(map[string]any)
	assert.Equal(t, "b1", payload["build_id"])
	assert.Equal(t, true, payload["split"])
	bundles := payload["bundles"].(map[string]any)
	assert.Equal(t, map[string]any{"id": "3", "js": "/bundle.3.js"}, bundles["./pages/a.js"])
}

func TestSocketIO_DialFailure(t *testing.T) {
	n, err := NewSocketIO(Config{URL: "http://localhost:3000"})
	require.NoError(t, err)
	boom := errors.New("refused")
	n.dial = func(context.Context, Config) (conn, error) { return nil, boom }

	err = n.Notify(context.Background(), Build{ID: "b1"})
	require.ErrorIs(t, err, boom)
}

func TestBuild_PayloadWithoutManifest(t *testing.T) {
	p := Build{ID: "b2"}.Payload()
	assert.Equal(t, map[string]any{}, p["bundles"])
	assert.Equal(t, false, p["split"])
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop.Notify(context.Background(), Build{}))
}

func TestConnectError(t *testing.T) {
	boom := errors.New("refused")
	assert.Equal(t, boom, connectError([]any{boom}))
	assert.EqualError(t, connectError([]any{"nope"}), "connect_error: nope")
	assert.EqualError(t, connectError(nil), "connect_error")
}
