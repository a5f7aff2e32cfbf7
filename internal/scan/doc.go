// Package scan inspects single module rows.
//
// A row is parsed only when a substring check shows it could import the
// runtime helper or contain a lazy-load call. The scanner records which rows
// import the helper and every `<expr>.bundles.load('<specifier>')` call, and
// rewrites each call's argument to the target's path relative to the project
// root. Rewrites go through an edit.Buffer so the row's source is only
// materialized once, after the whole graph has been seen.
package scan
