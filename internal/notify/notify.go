package notify

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/specialistvlad/bundlesplit/internal/ctxlog"
	"github.com/specialistvlad/bundlesplit/internal/manifest"
)

// Build describes a finished build.
type Build struct {
	ID       string
	Split    bool
	Manifest *manifest.Manifest
}

// Payload is the event body sent for b.
func (b Build) Payload() map[string]any {
	bundles := map[string]any{}
	if b.Manifest != nil {
		for _, key := range b.Manifest.Keys() {
			e, _ := b.Manifest.Lookup(key)
			entry := map[string]any{"id": e.ID.String()}
			if e.JS != "" {
				entry["js"] = e.JS
			}
			if e.CSS != "" {
				entry["css"] = e.CSS
			}
			bundles[key] = entry
		}
	}
	return map[string]any{
		"build_id": b.ID,
		"split":    b.Split,
		"bundles":  bundles,
	}
}

// Notifier is told about every finished build.
type Notifier interface {
	Notify(ctx context.Context, b Build) error
}

// Func adapts a function to a Notifier.
type Func func(ctx context.Context, b Build) error

// Notify calls f.
func (f Func) Notify(ctx context.Context, b Build) error { return f(ctx, b) }

// Nop discards notifications.
var Nop Notifier = Func(func(context.Context, Build) error { return nil })

// Config is the socket.io endpoint builds are announced on.
type Config struct {
	URL       string
	Namespace string
	Event     string
	Timeout   time.Duration
}

// conn is the part of a connected socket the notifier uses.
type conn interface {
	emit(event string, payload any)
	close()
}

type dialer func(ctx context.Context, cfg Config) (conn, error)

// SocketIO opens a connection per build, emits one event and disconnects.
type SocketIO struct {
	cfg  Config
	dial dialer
}

// NewSocketIO validates cfg and returns a notifier for it.
func NewSocketIO(cfg Config) (*SocketIO, error) {
	if cfg.URL == "" {
		return nil, errors.New("notify url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse notify url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("notify url %q must be absolute", cfg.URL)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "/"
	}
	if cfg.Event == "" {
		cfg.Event = "bundles:built"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &SocketIO{cfg: cfg, dial: dialSocketIO}, nil
}

// Notify emits the build event.
func (n *SocketIO) Notify(ctx context.Context, b Build) error {
	logger := ctxlog.FromContext(ctx).With("url", n.cfg.URL, "event", n.cfg.Event)

	c, err := n.dial(ctx, n.cfg)
	if err != nil {
		return fmt.Errorf("notify %s: %w", n.cfg.URL, err)
	}
	defer c.close()

	c.emit(n.cfg.Event, b.Payload())
	logger.Info("Build announced.", "build_id", b.ID)
	return nil
}

type socketConn struct {
	io *socket.Socket
}

func (c *socketConn) emit(event string, payload any) { c.io.Emit(event, payload) }

func (c *socketConn) close() { c.io.Disconnect() }

func dialSocketIO(ctx context.Context, cfg Config) (conn, error) {
	logger := ctxlog.FromContext(ctx).With("url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Debug("Connected to notify server.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		connectChan <- connectError(errs)
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &socketConn{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(cfg.Timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", cfg.Timeout)
	}
}

func connectError(args []any) error {
	if len(args) > 0 {
		if err, ok := args[0].(error); ok {
			return err
		}
		return fmt.Errorf("connect_error: %v", args[0])
	}
	return errors.New("connect_error")
}
