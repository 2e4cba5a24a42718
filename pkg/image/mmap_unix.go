//go:build linux || darwin || freebsd

package image

import (
	"os"

	sys "golang.org/x/sys/unix"
)

type mapping struct {
	path string
	mem  []byte
}

// Map maps the file at path read-only and private.
func Map(path string) (Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &IOError{"open", path, err}
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, &IOError{"stat", path, err}
	}
	if fi.Size() == 0 {
		// mmap(2) rejects zero length mappings.
		return &mapping{path: path}, nil
	}
	if int64(int(fi.Size())) != fi.Size() {
		return nil, &IOError{"mmap", path, sys.EFBIG}
	}

	mem, err := sys.Mmap(int(f.Fd()), 0, int(fi.Size()), sys.PROT_READ, sys.MAP_PRIVATE)
	if err != nil {
		return nil, &IOError{"mmap", path, err}
	}
	return &mapping{path, mem}, nil
}

func (m *mapping) Path() string  { return m.path }
func (m *mapping) Bytes() []byte { return m.mem }
func (m *mapping) Size() int     { return len(m.mem) }

func (m *mapping) Close() error {
	if m.mem == nil {
		return nil
	}
	err := sys.Munmap(m.mem)
	m.mem = nil
	if err != nil {
		return &IOError{"munmap", m.path, err}
	}
	return nil
}
