//go:build !linux

package hostenv

import (
	"fmt"
	"runtime"

	"github.com/uexec/uexec/pkg/auxv"
)

// Current is only implemented on linux.
func Current() (*auxv.Stack, error) {
	return nil, fmt.Errorf("%w: not supported on %s", ErrNoStack, runtime.GOOS)
}

// ReadMemory is only implemented on linux.
func ReadMemory(addr uint64, buf []byte) error {
	return fmt.Errorf("reading process memory is not supported on %s", runtime.GOOS)
}
