package importer

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Source is a re-openable byte stream. The pipeline makes two passes over
// every input (a cheap row count, then the full parse), so a plain io.Reader
// is not enough: the parser must be restartable from the start.
type Source interface {
	// Open returns a fresh reader positioned at the start of the data.
	Open() (io.ReadCloser, error)

	// Size returns the total size in bytes, or 0 if unknown.
	Size() int64
}

// FileSource reads from a file on disk. Uploads are spooled to a temp file
// before processing so memory stays bounded regardless of file size.
type FileSource struct {
	Path string
	size int64
}

// NewFileSource stats path and returns a Source backed by it.
func NewFileSource(path string) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	return &FileSource{Path: path, size: info.Size()}, nil
}

func (s *FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.Path)
}

func (s *FileSource) Size() int64 { return s.size }

// BytesSource serves an in-memory buffer. Used by tests and small payloads.
type BytesSource []byte

func (s BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s)), nil
}

func (s BytesSource) Size() int64 { return int64(len(s)) }
