package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/uexec/uexec/cmd/uexec/cmds"
	"github.com/uexec/uexec/pkg/version"
)

// Build is the git sha of this binary's source.
var Build string

func init() {
	// The loaded program takes over the thread main runs on, which is the
	// one whose stack holds the argument block.
	runtime.LockOSThread()
}

func main() {
	version.Build = Build
	if err := cmds.New(false).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
