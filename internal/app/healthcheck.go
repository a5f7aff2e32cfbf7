package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/specialistvlad/bundlesplit/internal/ctxlog"
)

// buildStatus is the outcome of the latest build, as reported by /health.
type buildStatus struct {
	mu      sync.Mutex
	buildID string
	err     error
	done    bool
}

func (s *buildStatus) record(report *Report, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.err = err
	if report != nil {
		s.buildID = report.BuildID
	}
}

// healthHandler reports 200 while the latest build succeeded.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	a.status.mu.Lock()
	done, id, err := a.status.done, a.status.buildID, a.status.err
	a.status.mu.Unlock()

	switch {
	case !done:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, "BUILDING")
	case err != nil:
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "FAILED %v\n", err)
	default:
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK %s\n", id)
	}
}

// startHealthcheckServer serves /health on addr until ctx is done. The
// returned function waits for the server to shut down.
func (a *App) startHealthcheckServer(ctx context.Context, addr string) (func(), error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.")

	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("health check server: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://%s/health", ln.Addr()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("🩺 Shutting down health check server...")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Health check server shutdown failed", "error", err)
		}
	}()
	return func() { <-done }, nil
}
