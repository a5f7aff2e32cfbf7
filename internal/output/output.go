// Package output provides the destinations generated bundles are written to.
//
// An Output hands out one Sink per bundle. A Sink may implement Namer when it
// decides its final file name itself, and Stager when its bytes only become
// visible once Commit is called. The builder commits every staged sink after
// all bundles were written, and aborts them all otherwise.
package output

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Sink receives the bytes of one bundle.
type Sink interface {
	io.WriteCloser
}

// Namer is implemented by sinks that assign their own final name. Name is
// only called after Close returned without error.
type Namer interface {
	Name() string
}

// Stager is implemented by sinks whose output is published in a second step.
type Stager interface {
	Commit(ctx context.Context) error
	Abort(ctx context.Context) error
}

// Output creates sinks.
type Output interface {
	Create(ctx context.Context, filename string) (Sink, error)
}

// Func adapts a function to the Output interface.
type Func func(ctx context.Context, filename string) (Sink, error)

// Create implements Output.
func (f Func) Create(ctx context.Context, filename string) (Sink, error) { return f(ctx, filename) }

// Placeholder is replaced by the bundle's id in filename templates.
const Placeholder = "%f"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// Filename expands a template for the bundle of id. A template without the
// placeholder yields a time-based name.
func Filename(template, id string, now time.Time) string {
	if !strings.Contains(template, Placeholder) {
		return "bundle." + strconv.FormatInt(now.UnixMilli(), 10) + ".js"
	}
	return strings.ReplaceAll(template, Placeholder, unsafeChars.ReplaceAllString(id, "_"))
}

// NameOf returns the final name of a closed sink.
func NameOf(s Sink, requested string) string {
	if n, ok := s.(Namer); ok {
		if name := n.Name(); name != "" {
			return name
		}
	}
	return requested
}

// Commit publishes s if it is staged.
func Commit(ctx context.Context, s Sink) error {
	if st, ok := s.(Stager); ok {
		return st.Commit(ctx)
	}
	return nil
}

// Abort discards s if it is staged.
func Abort(ctx context.Context, s Sink) error {
	if st, ok := s.(Stager); ok {
		return st.Abort(ctx)
	}
	return nil
}

// Error describes a failed output operation.
type Error struct {
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Name, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
