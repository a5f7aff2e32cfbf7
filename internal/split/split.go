// Package split partitions a module graph around lazy-load calls.
//
// Rows are streamed into a Splitter with Add, which scans each row and
// indexes it into the build's graph. Finalize then runs once over the
// complete graph: it decides which lazy-load targets become their own
// bundles, writes those bundles, and returns the rows that stay in the main
// bundle.
package split

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/specialistvlad/bundlesplit/internal/bundle"
	"github.com/specialistvlad/bundlesplit/internal/ctxlog"
	"github.com/specialistvlad/bundlesplit/internal/edit"
	"github.com/specialistvlad/bundlesplit/internal/graph"
	"github.com/specialistvlad/bundlesplit/internal/manifest"
	"github.com/specialistvlad/bundlesplit/internal/resolve"
	"github.com/specialistvlad/bundlesplit/internal/runtime"
	"github.com/specialistvlad/bundlesplit/internal/scan"
	"github.com/specialistvlad/bundlesplit/internal/scancache"
)

// ErrFinalized is returned when a Splitter is used after Finalize.
var ErrFinalized = errors.New("splitter already finalized")

// Options configures a Splitter.
type Options struct {
	Convention runtime.Convention
	Resolver   resolve.Resolver
	// Root is the project root lazy-load paths are made relative to.
	Root  string
	Cache *scancache.Cache[*scan.Parsed]
	// Builder writes the bundles. Its manifest is the one persisted.
	Builder *bundle.Builder
	// Manifest persists the manifest. Nil leaves persisting to the caller.
	Manifest manifest.Writer
	// WriteEmptyManifest persists an empty manifest for builds without
	// lazy-load calls.
	WriteEmptyManifest bool
}

// Result is the outcome of a build.
type Result struct {
	// Rows are the rows of the main bundle in arrival order.
	Rows []*graph.ModuleRow
	// Bundles are the written bundles.
	Bundles  []*bundle.Descriptor
	Manifest *manifest.Manifest
	// Split is set when lazy-load calls were processed. The main bundle must
	// then export its require function.
	Split bool
	// Runtime is the runtime helper row, nil when Split is false.
	Runtime *graph.ModuleRow
}

// Splitter holds the state of one build.
type Splitter struct {
	opts    Options
	scanner *scan.Scanner
	graph   *graph.Graph

	calls     []scan.SplitCall
	markers   []scan.RuntimeMarker
	requires  map[graph.ModuleID][]string
	buffers   map[graph.ModuleID]*edit.Buffer
	finalized bool
}

// New creates a Splitter for one build.
func New(opts Options) *Splitter {
	if opts.Convention == (runtime.Convention{}) {
		opts.Convention = runtime.DefaultConvention
	}
	if opts.Resolver == nil {
		opts.Resolver = resolve.NewFS(opts.Root)
	}
	if opts.Builder == nil {
		opts.Builder = bundle.New(bundle.Config{Convention: opts.Convention})
	}
	var scanOpts []scan.Option
	if opts.Cache != nil {
		scanOpts = append(scanOpts, scan.WithCache(opts.Cache))
	}
	return &Splitter{
		opts:     opts,
		scanner:  scan.New(opts.Convention, opts.Resolver, opts.Root, scanOpts...),
		graph:    graph.New(),
		requires: make(map[graph.ModuleID][]string),
		buffers:  make(map[graph.ModuleID]*edit.Buffer),
	}
}

// Close releases the scanner.
func (s *Splitter) Close() {
	s.scanner.Close()
}

// Graph returns the build's graph.
func (s *Splitter) Graph() *graph.Graph { return s.graph }

// Add scans row and adds it to the graph.
func (s *Splitter) Add(ctx context.Context, row *graph.ModuleRow) error {
	if s.finalized {
		return ErrFinalized
	}
	if err := s.graph.Add(row); err != nil {
		return err
	}
	res, err := s.scanner.Scan(ctx, row)
	if err != nil {
		return err
	}
	s.markers = append(s.markers, res.Markers...)
	if len(res.Calls) > 0 {
		s.calls = append(s.calls, res.Calls...)
		s.requires[row.ID] = res.Requires
		s.buffers[row.ID] = res.Buffer
	}
	return nil
}

// Split is a convenience that adds rows and finalizes.
func Split(ctx context.Context, opts Options, rows []*graph.ModuleRow) (*Result, error) {
	s := New(opts)
	defer s.Close()
	for _, row := range rows {
		if err := s.Add(ctx, row); err != nil {
			return nil, err
		}
	}
	return s.Finalize(ctx)
}

// plannedCall is a call whose target is known.
type plannedCall struct {
	call    scan.SplitCall
	target  graph.ModuleID
	removed graph.Removed
}

// Finalize partitions the graph, writes the bundles and persists the
// manifest. It runs once.
func (s *Splitter) Finalize(ctx context.Context) (*Result, error) {
	if s.finalized {
		return nil, ErrFinalized
	}
	s.finalized = true
	logger := ctxlog.FromContext(ctx)
	m := s.opts.Builder.Manifest()

	if len(s.calls) == 0 {
		logger.Debug("No lazy-load calls, passing rows through.", "rows", s.graph.Len())
		if s.opts.WriteEmptyManifest && s.opts.Manifest != nil {
			if err := m.Persist(ctx, s.opts.Manifest); err != nil {
				return nil, err
			}
		}
		return &Result{Rows: s.graph.Rows(), Manifest: m}, nil
	}

	rt, err := s.runtimeRow()
	if err != nil {
		return nil, err
	}

	planned, err := s.removeCallEdges()
	if err != nil {
		return nil, err
	}

	roots := entryIDs(s.graph)
	if !rt.External {
		roots = append(roots, rt.ID)
	}
	inMain := graph.NewSet(s.graph.Closure(roots...))

	descs, hoisted := s.plan(ctx, planned, inMain)

	if err := s.materialize(); err != nil {
		return nil, err
	}

	if err := s.opts.Builder.Build(ctx, s.graph, rt, descs); err != nil {
		return nil, err
	}

	rt.Expose = true
	s.bumpEntryOrder(rt.ID)

	var rows []*graph.ModuleRow
	for _, row := range s.graph.Rows() {
		if inMain.Has(row.ID) || hoisted.Has(row.ID) {
			rows = append(rows, row)
		}
	}

	if s.opts.Manifest != nil {
		if err := m.Persist(ctx, s.opts.Manifest); err != nil {
			return nil, err
		}
	}
	logger.Info("Split finished.", "main_rows", len(rows), "bundles", len(descs), "calls", len(s.calls))
	return &Result{Rows: rows, Bundles: descs, Manifest: m, Split: true, Runtime: rt}, nil
}

// runtimeRow identifies the runtime helper from the scanner's markers.
func (s *Splitter) runtimeRow() (*graph.ModuleRow, error) {
	seen := make(map[graph.ModuleID]bool)
	var ids []graph.ModuleID
	for _, mk := range s.markers {
		if mk.Target == "" || seen[mk.Target] {
			continue
		}
		seen[mk.Target] = true
		ids = append(ids, mk.Target)
	}

	switch len(ids) {
	case 0:
		calls := make([]string, 0, len(s.calls))
		for _, c := range s.calls {
			calls = append(calls, s.site(c))
		}
		return nil, &MissingRuntimeError{Name: s.opts.Convention.Name, Module: s.opts.Convention.Module, Calls: calls}
	case 1:
	default:
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return nil, &MissingRuntimeError{
			Name:       s.opts.Convention.Name,
			Module:     s.opts.Convention.Module,
			Ambiguous:  true,
			Candidates: ids,
		}
	}

	if row, ok := s.graph.Row(ids[0]); ok {
		return row, nil
	}
	// Imported but bundled elsewhere.
	ext := &graph.ModuleRow{ID: ids[0], External: true}
	if ids[0].IsNumeric() {
		if n, err := strconv.Atoi(string(ids[0])); err == nil {
			ext.Index = &n
		}
	}
	return ext, nil
}

// removeCallEdges finds each call's target and removes the caller's edge to
// it. Edges the caller also needs for a static import are kept.
func (s *Splitter) removeCallEdges() ([]plannedCall, error) {
	planned := make([]plannedCall, 0, len(s.calls))
	for _, c := range s.calls {
		target, ok := s.target(c)
		if !ok {
			caller, _ := s.graph.Row(c.Caller)
			return nil, &ResolutionError{Caller: c.Caller, File: caller.File, Line: c.Line, Column: c.Column, Specifier: c.Specifier}
		}
		p := plannedCall{call: c, target: target}
		if !s.importsStatically(c.Caller, target) {
			p.removed = s.graph.RemoveEdge(c.Caller, target)
		}
		planned = append(planned, p)
	}
	return planned, nil
}

func (s *Splitter) target(c scan.SplitCall) (graph.ModuleID, bool) {
	if c.Target != "" {
		if _, ok := s.graph.Row(c.Target); ok {
			return c.Target, true
		}
	}
	if c.ResolvedFile != "" {
		if row, ok := s.graph.ByFile(c.ResolvedFile); ok {
			return row.ID, true
		}
	}
	// The specifier may already be a module id, for example after ids
	// were collapsed to numbers.
	if row, ok := s.graph.Row(graph.ModuleID(c.Specifier)); ok {
		return row.ID, true
	}
	return "", false
}

func (s *Splitter) importsStatically(caller, target graph.ModuleID) bool {
	row, ok := s.graph.Row(caller)
	if !ok {
		return false
	}
	for _, spec := range s.requires[caller] {
		if row.Deps[spec] == target {
			return true
		}
	}
	return false
}

// plan decides the disposition of every call and returns the bundles to
// write and the modules hoisted into the main graph.
func (s *Splitter) plan(ctx context.Context, planned []plannedCall, inMain graph.Set) ([]*bundle.Descriptor, graph.Set) {
	logger := ctxlog.FromContext(ctx)

	byTarget := make(map[graph.ModuleID]*bundle.Descriptor)
	var descs []*bundle.Descriptor
	for _, p := range planned {
		if inMain.Has(p.target) {
			s.graph.RestoreEdge(p.call.Caller, p.removed)
			logger.Warn("Lazy-loaded module is also imported statically; keeping it in the main bundle.",
				"call", s.site(p.call), "target", p.target)
			continue
		}
		if d, ok := byTarget[p.target]; ok {
			if p.call.Path != d.Path && !contains(d.Aliases, p.call.Path) {
				d.Aliases = append(d.Aliases, p.call.Path)
			}
			continue
		}
		d := &bundle.Descriptor{Target: p.target, Path: p.call.Path}
		byTarget[p.target] = d
		descs = append(descs, d)
	}

	// Closures, minus what the main bundle already has.
	closures := make([][]graph.ModuleID, len(descs))
	count := make(map[graph.ModuleID]int)
	for i, d := range descs {
		for _, id := range s.graph.Closure(d.Target) {
			if inMain.Has(id) {
				row, _ := s.graph.Row(id)
				row.Expose = true
				continue
			}
			closures[i] = append(closures[i], id)
			count[id]++
		}
	}

	// Modules needed by several bundles move to the main graph.
	hoisted := graph.Set{}
	for id, n := range count {
		if n > 1 {
			hoisted[id] = struct{}{}
			row, _ := s.graph.Row(id)
			row.Expose = true
		}
	}

	for i, d := range descs {
		for _, id := range closures[i] {
			if hoisted.Has(id) {
				continue
			}
			d.Members = append(d.Members, id)
		}
		d.Hoisted = hoisted.Has(d.Target)
		logger.Debug("Planned bundle.", "bundle", d.Path, "target", d.Target, "members", len(d.Members), "hoisted", d.Hoisted)
	}
	if len(hoisted) > 0 {
		logger.Debug("Hoisted modules shared by several bundles.", "count", len(hoisted))
	}
	return descs, hoisted
}

// materialize applies the accumulated rewrites. Sources are final afterwards.
func (s *Splitter) materialize() error {
	for id, buf := range s.buffers {
		row, _ := s.graph.Row(id)
		out, err := buf.Bytes()
		if err != nil {
			return fmt.Errorf("rewrite %s: %w", row.File, err)
		}
		row.Source = string(out)
	}
	s.buffers = nil
	return nil
}

// bumpEntryOrder moves every ordered entry one step back so the rows that
// set up the runtime register first. Only the runtime row and the entry
// carrying it keep their position. When several entries reach the runtime,
// the earliest ordered one carries it.
func (s *Splitter) bumpEntryOrder(rt graph.ModuleID) {
	var carrier *graph.ModuleRow
	for _, row := range s.graph.Entries() {
		if row.Order == nil || row.ID == rt {
			continue
		}
		if carrier != nil && *row.Order >= *carrier.Order {
			continue
		}
		if s.reaches(row.ID, rt) {
			carrier = row
		}
	}
	for _, row := range s.graph.Entries() {
		if row.Order == nil || row.ID == rt || row == carrier {
			continue
		}
		*row.Order++
	}
}

// reaches reports whether the closure of from contains or imports id. An
// external runtime has no row, so the edges pointing at it are checked too.
func (s *Splitter) reaches(from, id graph.ModuleID) bool {
	for _, member := range s.graph.Closure(from) {
		if member == id {
			return true
		}
		row, _ := s.graph.Row(member)
		for _, dep := range row.Deps {
			if dep == id {
				return true
			}
		}
	}
	return false
}

func (s *Splitter) site(c scan.SplitCall) string {
	file := string(c.Caller)
	if row, ok := s.graph.Row(c.Caller); ok && row.File != "" {
		file = row.File
	}
	return fmt.Sprintf("%s:%d:%d", file, c.Line, c.Column)
}

func entryIDs(g *graph.Graph) []graph.ModuleID {
	entries := g.Entries()
	ids := make([]graph.ModuleID, 0, len(entries))
	for _, row := range entries {
		ids = append(ids, row.ID)
	}
	return ids
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
