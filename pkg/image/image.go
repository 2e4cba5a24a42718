// Package image supplies the raw bytes of an ELF file, either fully read
// into memory or through a read-only memory mapping.
package image

import (
	"errors"
	"fmt"
	"os"
)

// ErrIO is matched by every error returned while opening or reading an
// image.
var ErrIO = errors.New("image I/O failure")

// IOError records the operation and path that failed.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *IOError) Is(target error) bool { return target == ErrIO }

// Mode selects how an image is brought into memory.
type Mode string

const (
	// ModeRead reads the whole file into a heap buffer.
	ModeRead Mode = "read"
	// ModeMmap maps the file read-only.
	ModeMmap Mode = "mmap"
)

// ParseMode validates s as a Mode. The empty string selects ModeRead.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeRead:
		return ModeRead, nil
	case ModeMmap:
		return ModeMmap, nil
	}
	return "", fmt.Errorf("unknown image reader %q (want %q or %q)", s, ModeRead, ModeMmap)
}

// Image is a readable byte range holding the contents of a file.
type Image interface {
	// Path returns the path the image was opened from.
	Path() string
	// Bytes returns the file contents. The slice is only valid until
	// Close is called.
	Bytes() []byte
	// Size returns len(Bytes()).
	Size() int
	Close() error
}

// Open brings path into memory using mode.
func Open(path string, mode Mode) (Image, error) {
	switch mode {
	case "", ModeRead:
		return Read(path)
	case ModeMmap:
		return Map(path)
	}
	return nil, fmt.Errorf("unknown image reader %q", mode)
}

type buffer struct {
	path string
	buf  []byte
}

// Read reads the whole file at path.
func Read(path string) (Image, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{"read", path, err}
	}
	return &buffer{path, buf}, nil
}

func (b *buffer) Path() string  { return b.path }
func (b *buffer) Bytes() []byte { return b.buf }
func (b *buffer) Size() int     { return len(b.buf) }

func (b *buffer) Close() error {
	b.buf = nil
	return nil
}
