package output

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// HashLength is the number of hex digits of the content hash kept in names.
const HashLength = 8

// Hashed names every bundle after its content. The bytes are buffered until
// the sink is closed, then written to Next under `<name>.<hash>.<ext>`.
//
// The first quoted string ending in the requested name is rewritten to the
// final name. Bundles register under their URL before any member module is
// written, so that string is the entry's URL and module sources are left
// alone. The hash covers the bundle as packed, before that rewrite.
type Hashed struct {
	Next Output
}

// NewHashed wraps next.
func NewHashed(next Output) *Hashed {
	return &Hashed{Next: next}
}

// Create implements Output.
func (h *Hashed) Create(ctx context.Context, filename string) (Sink, error) {
	return &hashedSink{ctx: ctx, next: h.Next, requested: filename}, nil
}

// HashedName inserts the content hash before the extension of filename.
func HashedName(filename string, content []byte) string {
	sum := sha256.Sum256(content)
	digest := hex.EncodeToString(sum[:])[:HashLength]
	ext := path.Ext(filename)
	return strings.TrimSuffix(filename, ext) + "." + digest + ext
}

type hashedSink struct {
	ctx       context.Context
	next      Output
	requested string
	buf       bytes.Buffer

	name  string
	inner Sink
}

func (s *hashedSink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *hashedSink) Close() error {
	if s.inner != nil {
		return nil
	}
	name := HashedName(s.requested, s.buf.Bytes())
	inner, err := s.next.Create(s.ctx, name)
	if err != nil {
		return err
	}
	s.inner = inner
	content := rewriteSelf(s.buf.Bytes(), s.requested, name)
	if _, err := inner.Write(content); err != nil {
		_ = inner.Close()
		return &Error{Op: "write", Name: name, Err: err}
	}
	if err := inner.Close(); err != nil {
		return err
	}
	s.name = NameOf(inner, name)
	return nil
}

func (s *hashedSink) Name() string { return s.name }

func (s *hashedSink) Commit(ctx context.Context) error {
	if s.inner == nil {
		return nil
	}
	return Commit(ctx, s.inner)
}

func (s *hashedSink) Abort(ctx context.Context) error {
	if s.inner == nil {
		return nil
	}
	return Abort(ctx, s.inner)
}

// rewriteSelf replaces requested with name in the first quoted string that
// ends in requested, either whole or as the last path segment.
func rewriteSelf(content []byte, requested, name string) []byte {
	needle := []byte(requested + `"`)
	for off := 0; ; {
		i := bytes.Index(content[off:], needle)
		if i < 0 {
			return content
		}
		at := off + i
		if at > 0 && (content[at-1] == '"' || content[at-1] == '/') {
			out := make([]byte, 0, len(content)+len(name)-len(requested))
			out = append(out, content[:at]...)
			out = append(out, name...)
			return append(out, content[at+len(requested):]...)
		}
		off = at + 1
	}
}
