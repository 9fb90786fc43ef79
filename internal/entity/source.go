package entity

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Source is an opaque handle to a file payload. A source is owned by the
// submission that created it and is retained by failure records for retry.
type Source interface {
	// Name is the human-readable label (original filename).
	Name() string
	// Open returns a fresh reader over the payload.
	Open() (io.ReadCloser, error)
	// URI identifies the payload well enough to persist and restore it.
	URI() string
}

const (
	fileScheme = "file://"
	memScheme  = "mem://"
)

// ErrPayloadUnavailable is returned when a restored source no longer has its payload.
var ErrPayloadUnavailable = errors.New("payload no longer available")

// FileSource reads the payload from a path on the local filesystem.
type FileSource struct {
	Path string
}

func NewFileSource(path string) (FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileSource{}, fmt.Errorf("abs path: %w", err)
	}
	return FileSource{Path: abs}, nil
}

func (s FileSource) Name() string                 { return filepath.Base(s.Path) }
func (s FileSource) Open() (io.ReadCloser, error) { return os.Open(s.Path) }
func (s FileSource) URI() string                  { return fileScheme + s.Path }

// BytesSource holds the payload in memory.
type BytesSource struct {
	Filename string
	Data     []byte
}

func (s BytesSource) Name() string { return s.Filename }
func (s BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.Data)), nil
}
func (s BytesSource) URI() string { return memScheme + s.Filename }

// detachedSource is what a persisted in-memory payload restores to.
type detachedSource struct {
	name string
	uri  string
}

func (s detachedSource) Name() string { return s.name }
func (s detachedSource) Open() (io.ReadCloser, error) {
	return nil, fmt.Errorf("%s: %w", s.uri, ErrPayloadUnavailable)
}
func (s detachedSource) URI() string { return s.uri }

// SourceFromURI restores a Source previously described by URI().
func SourceFromURI(uri, name string) Source {
	switch {
	case strings.HasPrefix(uri, fileScheme):
		return FileSource{Path: strings.TrimPrefix(uri, fileScheme)}
	case strings.HasPrefix(uri, memScheme):
		return detachedSource{name: name, uri: uri}
	case uri != "":
		return FileSource{Path: uri}
	}
	return detachedSource{name: name, uri: uri}
}
