//go:build !(linux && (386 || amd64 || arm || arm64))

package supervise

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Supported reports whether Run is implemented on this platform.
func Supported() bool { return false }

// Run is not implemented on this platform.
func Run(ctx context.Context, cmd *exec.Cmd) (*Result, error) {
	return nil, fmt.Errorf("supervision is not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
}

// Supervised always returns false on this platform.
func Supervised() bool { return false }
