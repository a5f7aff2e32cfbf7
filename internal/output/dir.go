package output

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// Dir writes bundles into a directory. Each bundle is written to a temporary
// file next to its destination and renamed into place on Commit.
type Dir struct {
	Path string
}

// NewDir returns an output writing under path.
func NewDir(path string) *Dir {
	return &Dir{Path: path}
}

// Create implements Output.
func (d *Dir) Create(_ context.Context, filename string) (Sink, error) {
	dest := filepath.Join(d.Path, filepath.FromSlash(filename))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, &Error{Op: "create", Name: filename, Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return nil, &Error{Op: "create", Name: filename, Err: err}
	}
	return &fileSink{name: filename, dest: dest, tmp: tmp}, nil
}

type fileSink struct {
	name string
	dest string
	tmp  *os.File

	mu     sync.Mutex
	closed bool
	done   bool
}

func (s *fileSink) Write(p []byte) (int, error) {
	return s.tmp.Write(p)
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.tmp.Sync(); err != nil {
		_ = s.tmp.Close()
		return &Error{Op: "sync", Name: s.name, Err: err}
	}
	if err := s.tmp.Close(); err != nil {
		return &Error{Op: "close", Name: s.name, Err: err}
	}
	return nil
}

func (s *fileSink) Commit(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	if !s.closed {
		return &Error{Op: "commit", Name: s.name, Err: errors.New("sink not closed")}
	}
	s.done = true
	if err := os.Rename(s.tmp.Name(), s.dest); err != nil {
		_ = os.Remove(s.tmp.Name())
		return &Error{Op: "commit", Name: s.name, Err: err}
	}
	return nil
}

func (s *fileSink) Abort(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	if !s.closed {
		s.closed = true
		_ = s.tmp.Close()
	}
	if err := os.Remove(s.tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &Error{Op: "abort", Name: s.name, Err: err}
	}
	return nil
}
