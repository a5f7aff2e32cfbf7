package scan

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"

	"github.com/specialistvlad/bundlesplit/internal/ctxlog"
	"github.com/specialistvlad/bundlesplit/internal/edit"
	"github.com/specialistvlad/bundlesplit/internal/graph"
	"github.com/specialistvlad/bundlesplit/internal/resolve"
	"github.com/specialistvlad/bundlesplit/internal/runtime"
	"github.com/specialistvlad/bundlesplit/internal/scancache"
)

// SplitCall is one detected lazy-load call site.
type SplitCall struct {
	Caller graph.ModuleID
	// Target is the id the caller's deps table maps the specifier to. It is
	// empty when the specifier is not a deps key, for example when the call
	// was already rewritten by an earlier scan.
	Target       graph.ModuleID
	Specifier    string
	ResolvedFile string
	// Path is the root-relative, slash separated path written into the call.
	Path   string
	Line   int
	Column int
}

// RuntimeMarker records a module importing the runtime helper.
type RuntimeMarker struct {
	Row graph.ModuleID
	// Target is the id of the helper module as resolved in Row's deps.
	Target graph.ModuleID
}

// Result is what scanning one row produced.
type Result struct {
	Calls   []SplitCall
	Markers []RuntimeMarker
	// Requires lists the specifiers the row imports statically.
	Requires []string
	// Buffer tracks the rewrites of the row's source; nil when the row is untouched.
	Buffer *edit.Buffer
}

// Site is a lazy-load call as found in the source text. Resolution depends
// on the file system and happens each time a row is scanned.
type Site struct {
	Specifier    string
	Start, End   int
	Line, Column int
}

// Parsed is the cacheable outcome of parsing a source.
type Parsed struct {
	Runtime  bool
	Requires []string
	Sites    []Site
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithCache reuses parse results for sources seen before.
func WithCache(c *scancache.Cache[*Parsed]) Option {
	return func(s *Scanner) { s.cache = c }
}

// Scanner inspects rows for runtime imports and lazy-load calls. A Scanner
// owns a parser and must not be used from several goroutines at once.
type Scanner struct {
	conv     runtime.Convention
	resolver resolve.Resolver
	root     string
	parser   *sitter.Parser
	cache    *scancache.Cache[*Parsed]
}

// New creates a Scanner. root is the project root that rewritten paths are
// made relative to.
func New(conv runtime.Convention, resolver resolve.Resolver, root string, opts ...Option) *Scanner {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())
	s := &Scanner{
		conv:     conv,
		resolver: resolver,
		root:     root,
		parser:   parser,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close releases the parser.
func (s *Scanner) Close() {
	s.parser.Close()
}

// Scan inspects one row. Rows that cannot contain the runtime import or a
// lazy-load call are not parsed and yield an empty Result.
func (s *Scanner) Scan(ctx context.Context, row *graph.ModuleRow) (*Result, error) {
	if !s.conv.MayContainRuntime(row.Source) && !s.conv.MayContainCalls(row.Source) {
		return &Result{}, nil
	}
	logger := ctxlog.FromContext(ctx)
	src := []byte(row.Source)

	var parsed *Parsed
	var key string
	if s.cache != nil {
		key = scancache.Key(row.File, src)
		if hit, ok := s.cache.Get(key); ok {
			logger.Debug("Scan cache hit.", "file", row.File)
			parsed = hit
		}
	}
	if parsed == nil {
		var err error
		parsed, err = s.parse(ctx, row.File, src)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Put(key, parsed)
		}
	}
	return s.bind(row, src, parsed)
}

// bind attaches a parse outcome to a concrete row.
func (s *Scanner) bind(row *graph.ModuleRow, src []byte, parsed *Parsed) (*Result, error) {
	res := &Result{Requires: parsed.Requires}
	if parsed.Runtime {
		res.Markers = append(res.Markers, RuntimeMarker{Row: row.ID, Target: row.Deps[s.conv.Module]})
	}
	if len(parsed.Sites) == 0 {
		return res, nil
	}
	basedir := s.root
	if row.File != "" {
		basedir = filepath.Dir(row.File)
	}
	res.Buffer = edit.New(src)
	for _, site := range parsed.Sites {
		resolved, rel, err := s.locate(row.File, basedir, site)
		if err != nil {
			return nil, err
		}
		if err := res.Buffer.Update(site.Start, site.End, quote(rel)); err != nil {
			return nil, fmt.Errorf("rewrite %s: %w", row.File, err)
		}
		res.Calls = append(res.Calls, SplitCall{
			Caller:       row.ID,
			Target:       row.Deps[site.Specifier],
			Specifier:    site.Specifier,
			ResolvedFile: resolved,
			Path:         rel,
			Line:         site.Line,
			Column:       site.Column,
		})
	}
	return res, nil
}

// locate resolves a load call and makes its target root-relative. Targets
// outside the root are rejected: a rewritten path must resolve to the same
// file from any caller on the next scan.
func (s *Scanner) locate(file, basedir string, site Site) (string, string, error) {
	fail := func(err error) (string, string, error) {
		return "", "", &ResolutionError{File: file, Line: site.Line, Column: site.Column, Specifier: site.Specifier, Err: err}
	}
	resolved, err := s.resolver.Resolve(site.Specifier, basedir)
	if err != nil {
		return fail(err)
	}
	rel, err := filepath.Rel(s.root, resolved)
	if err != nil {
		return fail(err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fail(fmt.Errorf("%w: %s", ErrOutsideRoot, resolved))
	}
	return resolved, filepath.ToSlash(rel), nil
}

func (s *Scanner) parse(ctx context.Context, file string, src []byte) (*Parsed, error) {
	tree, err := s.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, syntaxError(file, root, src)
	}

	parsed := &Parsed{}
	var walkErr error
	walk(root, func(n *sitter.Node) bool {
		sh := classify(n, src, s.conv)
		switch sh.kind {
		case shapeRequireCall, shapeImportDecl:
			v, ok := stringValue(sh.arg, src, s.conv)
			if !ok {
				break
			}
			parsed.Requires = append(parsed.Requires, v)
			if v == s.conv.Module {
				parsed.Runtime = true
			}
		case shapeLoadCall:
			site, err := s.site(file, src, sh)
			if err != nil {
				walkErr = err
				return false
			}
			parsed.Sites = append(parsed.Sites, site)
		}
		return true
	})
	if walkErr != nil {
		return nil, walkErr
	}
	ctxlog.FromContext(ctx).Debug("Scanned module.", "file", file, "runtime", parsed.Runtime, "calls", len(parsed.Sites))
	return parsed, nil
}

// site extracts the specifier of a load call.
func (s *Scanner) site(file string, src []byte, sh shape) (Site, error) {
	at := sh.node
	if sh.arg != nil {
		at = sh.arg
	}
	line, col := position(at)

	if sh.arg == nil {
		return Site{}, &UnsupportedArgumentError{File: file, Line: line, Column: col, Got: "no argument"}
	}
	spec, ok := stringValue(sh.arg, src, s.conv)
	if !ok {
		return Site{}, &UnsupportedArgumentError{File: file, Line: line, Column: col, Got: sh.arg.Type()}
	}
	return Site{
		Specifier: spec,
		Start:     int(sh.arg.StartByte()),
		End:       int(sh.arg.EndByte()),
		Line:      line,
		Column:    col,
	}, nil
}

// walk visits n and its named descendants in document order until visit
// returns false.
func walk(n *sitter.Node, visit func(*sitter.Node) bool) bool {
	if !visit(n) {
		return false
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if !walk(n.NamedChild(i), visit) {
			return false
		}
	}
	return true
}

func position(n *sitter.Node) (int, int) {
	p := n.StartPoint()
	return int(p.Row) + 1, int(p.Column) + 1
}

// syntaxError locates the first error or missing node below root.
func syntaxError(file string, root *sitter.Node, src []byte) error {
	bad := firstError(root)
	if bad == nil {
		bad = root
	}
	line, col := position(bad)
	near := bad.Content(src)
	if len(near) > 32 {
		near = near[:32]
	}
	return &ParseError{File: file, Line: line, Column: col, Near: near}
}

func firstError(n *sitter.Node) *sitter.Node {
	if n.Type() == "ERROR" || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
