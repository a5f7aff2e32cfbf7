// Package graph holds the module graph of a single build as an indexed arena.
//
// # Ownership
//
// A Graph is created per build invocation and owned by whoever drives that
// build. Rows are referenced across the graph by ModuleID only; nothing else
// holds pointers into another row. The Graph is not safe for concurrent
// mutation: the splitter mutates it (edge removal, the Expose flag, order
// bumps) only while no bundle pipeline is running, and pipelines only read.
//
// # Rows
//
// ModuleRow mirrors the row format emitted by browserify/module-deps
// (`browserify --deps`): an id, the file it came from, its source, and a
// `deps` table mapping each import specifier to the id it resolved to. An
// optional `indexDeps` table maps the same specifiers to numeric indices when
// the host bundler has already relabelled ids.
//
// # Traversal
//
// Closure walks dependency edges depth-first from one or more roots. Every
// module is visited at most once per walk, so cycles terminate, and the order
// of the returned ids is deterministic (roots first, then dependencies sorted
// by specifier).
package graph
