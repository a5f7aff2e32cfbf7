package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/specialistvlad/bundlesplit/internal/bundle"
	"github.com/specialistvlad/bundlesplit/internal/ctxlog"
	"github.com/specialistvlad/bundlesplit/internal/graph"
	"github.com/specialistvlad/bundlesplit/internal/manifest"
	"github.com/specialistvlad/bundlesplit/internal/notify"
	"github.com/specialistvlad/bundlesplit/internal/output"
	"github.com/specialistvlad/bundlesplit/internal/pack"
	"github.com/specialistvlad/bundlesplit/internal/rowio"
	"github.com/specialistvlad/bundlesplit/internal/split"
)

// stdio is the path that stands for standard input or output.
const stdio = "-"

// Report summarizes one build.
type Report struct {
	BuildID  string
	Rows     int
	Bundles  []*bundle.Descriptor
	Split    bool
	Manifest *manifest.Manifest
	Duration time.Duration
}

// Build runs one build: it reads the graph, writes the bundles and the
// manifest, then the main bundle and rows when configured, and finally
// announces the build.
func (a *App) Build(ctx context.Context) (*Report, error) {
	id := uuid.NewString()
	ctx = ctxlog.With(ctxlog.WithLogger(ctx, a.logger), "build_id", id)
	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	logger.Info("🚀 Starting build...", "graph", a.config.Graph)

	res, err := a.split(ctx)
	if err != nil {
		return nil, err
	}

	if a.config.Main != "" {
		if err := a.writeMain(ctx, res); err != nil {
			return nil, err
		}
	}
	if a.config.Rows != "" {
		if err := a.writeRows(ctx, res); err != nil {
			return nil, err
		}
	}

	report := &Report{
		BuildID:  id,
		Rows:     len(res.Rows),
		Bundles:  res.Bundles,
		Split:    res.Split,
		Manifest: res.Manifest,
		Duration: time.Since(start),
	}

	// The build is already on disk; a failed announcement does not undo it.
	if err := a.notifier.Notify(ctx, notify.Build{ID: id, Split: res.Split, Manifest: res.Manifest}); err != nil {
		logger.Warn("Failed to announce build.", "error", err)
	}

	logger.Info("🏁 Build finished.", "rows", report.Rows, "bundles", len(report.Bundles), "duration", report.Duration)
	return report, nil
}

func (a *App) split(ctx context.Context) (*split.Result, error) {
	r, closeGraph, err := a.openGraph()
	if err != nil {
		return nil, err
	}
	defer closeGraph()

	builder := bundle.New(bundle.Config{
		Convention: a.conv,
		Output:     a.output,
		Filename:   a.config.Filename,
		Prefix:     a.config.Prefix,
	})
	s := split.New(split.Options{
		Convention:         a.conv,
		Root:               a.root,
		Cache:              a.cache,
		Builder:            builder,
		Manifest:           manifest.File(a.config.Manifest),
		WriteEmptyManifest: a.config.WriteEmptyManifest,
	})
	defer s.Close()

	err = rowio.Read(r, func(row *graph.ModuleRow) error {
		return s.Add(ctx, row)
	})
	if err != nil {
		return nil, fmt.Errorf("read graph %s: %w", a.config.Graph, err)
	}
	ctxlog.FromContext(ctx).Debug("Graph loaded.", "rows", s.Graph().Len())
	return s.Finalize(ctx)
}

func (a *App) openGraph() (io.Reader, func(), error) {
	if a.config.Graph == stdio {
		return a.stdin, func() {}, nil
	}
	f, err := os.Open(a.config.Graph)
	if err != nil {
		return nil, nil, fmt.Errorf("open graph: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func (a *App) writeMain(ctx context.Context, res *split.Result) error {
	opts := pack.Options{HasExports: res.Split}
	err := a.writeTarget(ctx, a.config.Main, func(w io.Writer) error {
		return pack.Pack(w, res.Rows, opts)
	})
	if err != nil {
		return fmt.Errorf("write main bundle %s: %w", a.config.Main, err)
	}
	ctxlog.FromContext(ctx).Info("Main bundle written.", "path", a.config.Main, "rows", len(res.Rows), "exports", opts.HasExports)
	return nil
}

func (a *App) writeRows(ctx context.Context, res *split.Result) error {
	format, err := rowio.ParseFormat(a.config.RowsFormat)
	if err != nil {
		return err
	}
	err = a.writeTarget(ctx, a.config.Rows, func(w io.Writer) error {
		return rowio.Write(w, res.Rows, format)
	})
	if err != nil {
		return fmt.Errorf("write rows %s: %w", a.config.Rows, err)
	}
	ctxlog.FromContext(ctx).Debug("Rows written.", "path", a.config.Rows, "format", string(format))
	return nil
}

// writeTarget writes to standard output or to a file. A file is staged
// beside its destination and only replaces it once fully written.
func (a *App) writeTarget(ctx context.Context, path string, write func(io.Writer) error) error {
	if path == stdio {
		return write(a.stdout)
	}
	sink, err := output.NewDir(filepath.Dir(path)).Create(ctx, filepath.Base(path))
	if err != nil {
		return err
	}
	err = write(sink)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Join(err, output.Abort(ctx, sink))
	}
	return output.Commit(ctx, sink)
}
