package scan

import (
	"errors"
	"fmt"
)

// ErrOutsideRoot is wrapped by ResolutionError when a lazy-load target lies
// outside the project root.
var ErrOutsideRoot = errors.New("target is outside the project root")

// ParseError reports a module whose source has syntax errors. It is fatal
// for the whole build.
type ParseError struct {
	File   string
	Line   int
	Column int
	Near   string
}

func (e *ParseError) Error() string {
	if e.Near != "" {
		return fmt.Sprintf("parse %s:%d:%d: syntax error near %q", e.File, e.Line, e.Column, e.Near)
	}
	return fmt.Sprintf("parse %s:%d:%d: syntax error", e.File, e.Line, e.Column)
}

// UnsupportedArgumentError reports a lazy-load call whose first argument is
// not a string literal or an interpolation-free template string.
type UnsupportedArgumentError struct {
	File   string
	Line   int
	Column int
	Got    string
}

func (e *UnsupportedArgumentError) Error() string {
	return fmt.Sprintf("%s:%d:%d: lazy-load argument must be a string literal or a template string without substitutions, got %s",
		e.File, e.Line, e.Column, e.Got)
}

// ResolutionError reports a lazy-load specifier that does not resolve to a file.
type ResolutionError struct {
	File      string
	Line      int
	Column    int
	Specifier string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s:%d:%d: cannot resolve lazy-load target %q: %v", e.File, e.Line, e.Column, e.Specifier, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
