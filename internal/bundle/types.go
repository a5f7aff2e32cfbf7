package bundle

import (
	"fmt"
	"io"

	"github.com/specialistvlad/bundlesplit/internal/graph"
)

// Descriptor is one planned bundle.
type Descriptor struct {
	// Target is the module the lazy load asked for.
	Target graph.ModuleID
	// Path is the call-site path and the bundle's manifest key.
	Path string
	// Aliases are further call-site paths that resolved to the same target.
	Aliases []string
	// Members are the rows written besides the synthetic entry, target
	// first unless Hoisted.
	Members []graph.ModuleID
	// Hoisted is set when the target stays in the main graph because
	// several bundles depend on it.
	Hoisted bool

	// CSS is the stylesheet hooks attached to the bundle, if any.
	CSS string

	// Filename and URL are assigned once the bundle is written.
	Filename string
	URL      string
}

// Stage labels of a bundle pipeline.
const (
	StagePack = "pack"
	StageWrap = "wrap"
)

// Transform wraps the writer of the next stage. Closing the returned writer
// must flush everything to w.
type Transform func(w io.Writer) io.WriteCloser

// Pipeline is handed to hooks before a bundle is written.
type Pipeline struct {
	Descriptor *Descriptor
	// Row is the target row.
	Row *graph.ModuleRow
	// Filename is the requested output name.
	Filename string

	stages map[string][]Transform
}

func newPipeline(d *Descriptor, row *graph.ModuleRow, filename string) *Pipeline {
	return &Pipeline{
		Descriptor: d,
		Row:        row,
		Filename:   filename,
		stages:     map[string][]Transform{StagePack: nil, StageWrap: nil},
	}
}

// Push appends t to the stage named label.
func (p *Pipeline) Push(label string, t Transform) error {
	if _, ok := p.stages[label]; !ok {
		return fmt.Errorf("unknown pipeline stage %q", label)
	}
	p.stages[label] = append(p.stages[label], t)
	return nil
}

// AddCSS attaches a stylesheet to the bundle. It is listed in the manifest
// under the bundle's path and every alias once the bundle is committed.
func (p *Pipeline) AddCSS(url string) {
	p.Descriptor.CSS = url
}

// transforms returns the pushed transforms in pipeline order.
func (p *Pipeline) transforms() []Transform {
	out := make([]Transform, 0, len(p.stages[StagePack])+len(p.stages[StageWrap]))
	out = append(out, p.stages[StagePack]...)
	return append(out, p.stages[StageWrap]...)
}

// SinkError reports a bundle that could not be written.
type SinkError struct {
	Bundle   string
	Filename string
	Err      error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("write bundle %s (%s): %v", e.Bundle, e.Filename, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
