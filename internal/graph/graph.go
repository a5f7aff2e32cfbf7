package graph

import (
	"path/filepath"
	"sort"
)

// Graph is the arena of rows collected for one build.
type Graph struct {
	rows  map[ModuleID]*ModuleRow
	order []ModuleID
	files map[string]ModuleID
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		rows:  make(map[ModuleID]*ModuleRow),
		files: make(map[string]ModuleID),
	}
}

// Add indexes a row. Rows keep their arrival order. A second row with an
// id already present is rejected.
func (g *Graph) Add(row *ModuleRow) error {
	if prev, ok := g.rows[row.ID]; ok {
		return &DuplicateIDError{ID: row.ID, First: prev.File, Again: row.File}
	}
	if row.Deps == nil {
		row.Deps = make(map[string]ModuleID)
	}
	g.rows[row.ID] = row
	g.order = append(g.order, row.ID)
	if row.File != "" {
		g.files[filepath.Clean(row.File)] = row.ID
	}
	return nil
}

// Row returns the row with the given id.
func (g *Graph) Row(id ModuleID) (*ModuleRow, bool) {
	row, ok := g.rows[id]
	return row, ok
}

// ByFile returns the row that was read from the given file path.
func (g *Graph) ByFile(file string) (*ModuleRow, bool) {
	id, ok := g.files[filepath.Clean(file)]
	if !ok {
		return nil, false
	}
	return g.rows[id], true
}

// Len returns the number of rows.
func (g *Graph) Len() int { return len(g.order) }

// Rows returns all rows in arrival order.
func (g *Graph) Rows() []*ModuleRow {
	out := make([]*ModuleRow, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.rows[id])
	}
	return out
}

// Entries returns the entry rows in arrival order.
func (g *Graph) Entries() []*ModuleRow {
	var out []*ModuleRow
	for _, id := range g.order {
		if row := g.rows[id]; row.Entry {
			out = append(out, row)
		}
	}
	return out
}

// RemoveEdge deletes every dependency entry of `from` that points at `to`,
// in both the specifier-keyed and the index-keyed tables.
func (g *Graph) RemoveEdge(from, to ModuleID) Removed {
	removed := Removed{}
	src, ok := g.rows[from]
	if !ok {
		return removed
	}
	for spec, id := range src.Deps {
		if id == to {
			if removed.Deps == nil {
				removed.Deps = make(map[string]ModuleID)
			}
			removed.Deps[spec] = id
			delete(src.Deps, spec)
		}
	}
	dst, ok := g.rows[to]
	if !ok || dst.Index == nil || src.IndexDeps == nil {
		return removed
	}
	for spec, idx := range src.IndexDeps {
		if idx == *dst.Index {
			if removed.IndexDeps == nil {
				removed.IndexDeps = make(map[string]int)
			}
			removed.IndexDeps[spec] = idx
			delete(src.IndexDeps, spec)
		}
	}
	return removed
}

// RestoreEdge puts back entries previously returned by RemoveEdge.
func (g *Graph) RestoreEdge(from ModuleID, removed Removed) {
	src, ok := g.rows[from]
	if !ok {
		return
	}
	for spec, id := range removed.Deps {
		src.Deps[spec] = id
	}
	if len(removed.IndexDeps) == 0 {
		return
	}
	if src.IndexDeps == nil {
		src.IndexDeps = make(map[string]int)
	}
	for spec, idx := range removed.IndexDeps {
		src.IndexDeps[spec] = idx
	}
}

// Closure returns the ids reachable from roots by following dependency
// edges, the roots included. Ids that are not part of the graph are skipped.
func (g *Graph) Closure(roots ...ModuleID) []ModuleID {
	seen := make(map[ModuleID]bool)
	var out []ModuleID

	var visit func(id ModuleID)
	visit = func(id ModuleID) {
		row, ok := g.rows[id]
		if !ok || seen[id] {
			return
		}
		seen[id] = true
		out = append(out, id)
		for _, dep := range sortedDeps(row) {
			visit(dep)
		}
	}
	for _, root := range roots {
		visit(root)
	}
	return out
}

// Set is a membership view of a list of ids.
type Set map[ModuleID]struct{}

// NewSet builds a Set from ids.
func NewSet(ids []ModuleID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(id ModuleID) bool {
	_, ok := s[id]
	return ok
}

// sortedDeps returns the dependency ids of a row ordered by specifier.
func sortedDeps(row *ModuleRow) []ModuleID {
	specs := make([]string, 0, len(row.Deps))
	for spec := range row.Deps {
		specs = append(specs, spec)
	}
	sort.Strings(specs)
	deps := make([]ModuleID, 0, len(specs))
	for _, spec := range specs {
		if id := row.Deps[spec]; id != "" {
			deps = append(deps, id)
		}
	}
	return deps
}
