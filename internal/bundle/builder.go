package bundle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/bundlesplit/internal/ctxlog"
	"github.com/specialistvlad/bundlesplit/internal/graph"
	"github.com/specialistvlad/bundlesplit/internal/manifest"
	"github.com/specialistvlad/bundlesplit/internal/output"
	"github.com/specialistvlad/bundlesplit/internal/pack"
	"github.com/specialistvlad/bundlesplit/internal/runtime"
)

// DefaultFilename is the filename template used when none is configured.
const DefaultFilename = "bundle.%f.js"

// Hook lets the host adjust a bundle's pipeline before it runs.
type Hook func(ctx context.Context, p *Pipeline) error

// Config configures a Builder.
type Config struct {
	Convention runtime.Convention
	Output     output.Output
	// Filename is the output name template, see output.Filename.
	Filename string
	// Prefix is prepended to filenames to form bundle URLs.
	Prefix   string
	Manifest *manifest.Manifest
	Hooks    []Hook
	Now      func() time.Time
}

// Builder runs bundle pipelines.
type Builder struct {
	cfg Config
}

// New creates a Builder, filling in defaults.
func New(cfg Config) *Builder {
	if cfg.Convention == (runtime.Convention{}) {
		cfg.Convention = runtime.DefaultConvention
	}
	if cfg.Filename == "" {
		cfg.Filename = DefaultFilename
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/"
	}
	if cfg.Manifest == nil {
		cfg.Manifest = manifest.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Builder{cfg: cfg}
}

// Manifest returns the manifest bundles are recorded in.
func (b *Builder) Manifest() *manifest.Manifest { return b.cfg.Manifest }

// Build writes one bundle per descriptor and records them in the manifest.
// Rows are only read. The manifest is not touched unless every bundle was
// written and committed.
func (b *Builder) Build(ctx context.Context, g *graph.Graph, rt *graph.ModuleRow, descs []*Descriptor) error {
	if len(descs) == 0 {
		return nil
	}
	if b.cfg.Output == nil {
		return errors.New("bundle output is not configured")
	}
	logger := ctxlog.FromContext(ctx)

	sinks := make([]output.Sink, len(descs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, d := range descs {
		eg.Go(func() error {
			sink, err := b.run(egCtx, g, rt, d)
			sinks[i] = sink
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		b.abort(ctx, sinks)
		return err
	}

	for i, sink := range sinks {
		if err := output.Commit(ctx, sink); err != nil {
			b.abort(ctx, sinks[i+1:])
			return &SinkError{Bundle: descs[i].Path, Filename: descs[i].Filename, Err: err}
		}
	}

	for _, d := range descs {
		entry := manifest.Entry{ID: d.Target, JS: d.URL, CSS: d.CSS}
		b.cfg.Manifest.Add(d.Path, entry)
		for _, alias := range d.Aliases {
			b.cfg.Manifest.Add(alias, entry)
		}
		logger.Info("Bundle written.", "bundle", d.Path, "id", d.Target, "url", d.URL, "modules", len(d.Members))
	}
	return nil
}

func (b *Builder) abort(ctx context.Context, sinks []output.Sink) {
	logger := ctxlog.FromContext(ctx)
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := output.Abort(ctx, sink); err != nil {
			logger.Warn("Failed to discard bundle output.", "error", err)
		}
	}
}

// run executes the pipeline of one descriptor. The sink is returned even on
// failure so that it can be aborted.
func (b *Builder) run(ctx context.Context, g *graph.Graph, rt *graph.ModuleRow, d *Descriptor) (output.Sink, error) {
	target, ok := g.Row(d.Target)
	if !ok {
		return nil, fmt.Errorf("bundle %s: target module %s is not in the graph", d.Path, d.Target)
	}

	filename := output.Filename(b.cfg.Filename, string(target.ID), b.cfg.Now())
	url := JoinURL(b.cfg.Prefix, filename)

	p := newPipeline(d, target, filename)
	for _, hook := range b.cfg.Hooks {
		if err := hook(ctx, p); err != nil {
			return nil, fmt.Errorf("bundle %s: pipeline hook: %w", d.Path, err)
		}
	}

	rows := []*graph.ModuleRow{b.entryRow(target, rt, url)}
	for _, id := range d.Members {
		row, ok := g.Row(id)
		if !ok {
			return nil, fmt.Errorf("bundle %s: member module %s is not in the graph", d.Path, id)
		}
		rows = append(rows, row)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sink, err := b.cfg.Output.Create(ctx, filename)
	if err != nil {
		return nil, &SinkError{Bundle: d.Path, Filename: filename, Err: err}
	}

	if err := write(sink, p.transforms(), rows); err != nil {
		return sink, &SinkError{Bundle: d.Path, Filename: filename, Err: err}
	}

	d.Filename = output.NameOf(sink, filename)
	d.URL = JoinURL(b.cfg.Prefix, d.Filename)
	return sink, nil
}

// write packs rows through the transforms into sink and closes everything,
// outermost writer first.
func write(sink output.Sink, transforms []Transform, rows []*graph.ModuleRow) error {
	var w io.Writer = sink
	closers := make([]io.Closer, 0, len(transforms))
	for i := len(transforms) - 1; i >= 0; i-- {
		wc := transforms[i](w)
		closers = append(closers, wc)
		w = wc
	}

	err := pack.Pack(w, rows, pack.Options{})
	for i := len(closers) - 1; i >= 0; i-- {
		if cerr := closers[i].Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if cerr := sink.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// entryRow is the synthetic entry of a bundle: it requires the target and
// reports it to the runtime helper under the bundle's URL.
func (b *Builder) entryRow(target, rt *graph.ModuleRow, url string) *graph.ModuleRow {
	row := &graph.ModuleRow{
		ID:     "bundle" + target.ID,
		Source: b.cfg.Convention.EntrySource(url),
		Entry:  true,
		Deps: map[string]graph.ModuleID{
			b.cfg.Convention.Module: rt.ID,
			runtime.EntrySpecifier:  target.ID,
		},
	}
	if rt.Index != nil && target.Index != nil {
		row.IndexDeps = map[string]int{
			b.cfg.Convention.Module: *rt.Index,
			runtime.EntrySpecifier:  *target.Index,
		}
	}
	return row
}

// JoinURL joins a URL prefix and a filename. Absolute URLs keep their scheme.
func JoinURL(prefix, filename string) string {
	if strings.Contains(prefix, "://") {
		return strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(filename, "/")
	}
	return path.Join(prefix, filename)
}
