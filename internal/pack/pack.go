// Package pack serializes module rows into the browser-pack bundle format:
// a small require prelude followed by a table of module factories keyed by
// id and the list of entry ids to execute.
package pack

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/specialistvlad/bundlesplit/internal/graph"
)

// Prelude is the module loader every bundle starts with. When the page has a
// global require (an earlier bundle packed with HasExports) unknown ids are
// looked up there.
const Prelude = `(function(){function r(e,n,t){function o(i,f){if(!n[i]){if(!e[i]){var c="function"==typeof require&&require;if(!f&&c)return c(i,!0);if(u)return u(i,!0);var a=new Error("Cannot find module '"+i+"'");throw a.code="MODULE_NOT_FOUND",a}var p=n[i]={exports:{}};e[i][0].call(p.exports,function(r){var n=e[i][1][r];return o(n||r)},p,p.exports,r,e,n,t)}return n[i].exports}for(var u="function"==typeof require&&require,i=0;i<t.length;i++)o(t[i]);return o}return r})()`

// Options controls the bundle wrapper.
type Options struct {
	// HasExports assigns the bundle's require function to the global
	// require so that later bundles can reach exposed modules.
	HasExports bool
}

// Pack writes rows to w. External rows are referenced by id only and are
// not written. Entries are executed in Order where given, otherwise in row
// order.
func Pack(w io.Writer, rows []*graph.ModuleRow, opts Options) error {
	pw := &writer{w: w}

	if opts.HasExports || hasExposed(rows) {
		pw.str("require=")
	}
	pw.str(Prelude)
	pw.str("({")

	first := true
	for _, row := range rows {
		if row.External {
			continue
		}
		if !first {
			pw.str(",")
		}
		first = false
		pw.json(row.ID)
		pw.str(":[function(require,module,exports){\n")
		pw.str(row.Source)
		pw.str("\n},")
		pw.deps(row.Deps)
		pw.str("]")
	}

	pw.str("},{},")
	pw.json(entries(rows))
	pw.str(")\n")
	return pw.err
}

func hasExposed(rows []*graph.ModuleRow) bool {
	for _, row := range rows {
		if row.Expose && !row.External {
			return true
		}
	}
	return false
}

// entries orders entry ids: rows with an explicit order first, by order,
// then the rest in row order.
func entries(rows []*graph.ModuleRow) []graph.ModuleID {
	type entry struct {
		id    graph.ModuleID
		order int
		seq   int
	}
	var list []entry
	for i, row := range rows {
		if !row.Entry || row.External {
			continue
		}
		e := entry{id: row.ID, order: -1, seq: i}
		if row.Order != nil {
			e.order = *row.Order
		}
		list = append(list, e)
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.order >= 0 && b.order >= 0:
			return a.order < b.order
		case a.order >= 0:
			return true
		case b.order >= 0:
			return false
		default:
			return a.seq < b.seq
		}
	})
	ids := make([]graph.ModuleID, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.id)
	}
	return ids
}

// writer remembers the first error so the format code reads linearly.
type writer struct {
	w   io.Writer
	err error
}

func (pw *writer) str(s string) {
	if pw.err != nil {
		return
	}
	_, pw.err = io.WriteString(pw.w, s)
}

func (pw *writer) json(v any) {
	if pw.err != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		pw.err = fmt.Errorf("pack: %w", err)
		return
	}
	_, pw.err = pw.w.Write(data)
}

// deps writes a deps table with sorted keys. Ignored specifiers (empty ids)
// are written as false, which the prelude treats as a missing module.
func (pw *writer) deps(deps map[string]graph.ModuleID) {
	specs := make([]string, 0, len(deps))
	for spec := range deps {
		specs = append(specs, spec)
	}
	sort.Strings(specs)

	pw.str("{")
	for i, spec := range specs {
		if i > 0 {
			pw.str(",")
		}
		pw.json(spec)
		pw.str(":")
		if id := deps[spec]; id != "" {
			pw.json(id)
		} else {
			pw.str("false")
		}
	}
	pw.str("}")
}
