package split

import (
	"fmt"
	"strings"

	"github.com/specialistvlad/bundlesplit/internal/graph"
)

// MissingRuntimeError is returned when lazy-load calls exist but the runtime
// helper they rely on cannot be identified.
type MissingRuntimeError struct {
	Name   string
	Module string
	// Ambiguous is set when rows import different copies of the helper.
	Ambiguous bool
	// Candidates are the distinct helper ids seen when Ambiguous.
	Candidates []graph.ModuleID
	// Calls names the call sites that need the helper.
	Calls []string
}

func (e *MissingRuntimeError) Error() string {
	if e.Ambiguous {
		ids := make([]string, 0, len(e.Candidates))
		for _, id := range e.Candidates {
			ids = append(ids, id.String())
		}
		return fmt.Sprintf("%s: found two incompatible copies of the runtime helper %s (modules %s); make sure a single version is installed",
			e.Name, e.Module, strings.Join(ids, ", "))
	}
	return fmt.Sprintf("%s: the runtime helper %s was not bundled, but lazy loads need it (%s); most likely two versions of %s are in use",
		e.Name, e.Module, strings.Join(e.Calls, ", "), e.Module)
}

// ResolutionError is returned for a lazy-load call whose target is not a
// module of the graph.
type ResolutionError struct {
	Caller    graph.ModuleID
	File      string
	Line      int
	Column    int
	Specifier string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s:%d:%d: lazy-load target %q is not part of the module graph", e.File, e.Line, e.Column, e.Specifier)
}
