//go:build !linux && !darwin && !freebsd

package image

import "errors"

// Map is not available on this platform.
func Map(path string) (Image, error) {
	return nil, &IOError{"mmap", path, errors.New("memory mapped images are not supported on this platform")}
}
