//go:build !linux

package loader

import (
	"fmt"
	"runtime"

	"github.com/uexec/uexec/pkg/elf32"
)

// MapSegments is only implemented on linux.
func MapSegments(path string, d *elf32.Descriptor) error {
	return &MapError{-1, uint64(d.BaseAddress), fmt.Errorf("segment mapping not supported on %s", runtime.GOOS)}
}
