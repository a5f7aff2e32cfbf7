// Package edit records text replacements against an original source and
// applies them in one pass.
//
// Offsets always refer to the original bytes, so edits can be recorded in
// any order without shifting each other. Replacing the same span twice keeps
// the last text. An edit nested inside another recorded edit is dropped when
// the outer one is applied; edits that partially overlap are rejected.
package edit

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
)

// ErrOverlap is returned when two edits overlap without one containing the other.
var ErrOverlap = errors.New("edit: overlapping edits")

type span struct {
	start, end int
	text       string
}

// Buffer is an original source plus the edits recorded against it.
type Buffer struct {
	orig  []byte
	edits map[[2]int]*span
}

// New returns a Buffer over src. src is not copied and must not be modified.
func New(src []byte) *Buffer {
	return &Buffer{orig: src, edits: make(map[[2]int]*span)}
}

// Original returns the unedited source.
func (b *Buffer) Original() []byte { return b.orig }

// Len returns the number of distinct spans edited.
func (b *Buffer) Len() int { return len(b.edits) }

// Update replaces orig[start:end] with text.
func (b *Buffer) Update(start, end int, text string) error {
	if start < 0 || end < start || end > len(b.orig) {
		return fmt.Errorf("edit: span [%d,%d) out of range for %d bytes", start, end, len(b.orig))
	}
	key := [2]int{start, end}
	if s, ok := b.edits[key]; ok {
		s.text = text
		return nil
	}
	b.edits[key] = &span{start: start, end: end, text: text}
	return nil
}

// Bytes returns the source with all edits applied.
func (b *Buffer) Bytes() ([]byte, error) {
	if len(b.edits) == 0 {
		return b.orig, nil
	}
	spans := make([]*span, 0, len(b.edits))
	for _, s := range b.edits {
		spans = append(spans, s)
	}
	// Outer spans sort before the spans they contain.
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})

	var out bytes.Buffer
	out.Grow(len(b.orig))
	pos := 0
	var last *span
	for _, s := range spans {
		if last != nil && s.start < last.end {
			if s.end <= last.end {
				continue
			}
			return nil, fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlap, last.start, last.end, s.start, s.end)
		}
		out.Write(b.orig[pos:s.start])
		out.WriteString(s.text)
		pos = s.end
		last = s
	}
	out.Write(b.orig[pos:])
	return out.Bytes(), nil
}
