package version

import (
	"fmt"
	"runtime/debug"
)

// Version is the release of uexec.
const Version = "0.3.0"

// Build identifies the source the binary was built from. When empty the
// VCS revision recorded by the Go toolchain is used.
var Build string

// String returns the text printed by "uexec version".
func String() string {
	return format(Version, Build, debug.ReadBuildInfo)
}

func format(version, build string, readBuildInfo func() (*debug.BuildInfo, bool)) string {
	if build == "" {
		build = vcsRevision(readBuildInfo)
	}
	if build == "" {
		build = "unknown"
	}
	return fmt.Sprintf("Version: %s\nBuild: %s", version, build)
}

func vcsRevision(readBuildInfo func() (*debug.BuildInfo, bool)) string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	var rev, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			rev = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}
	if rev != "" && modified == "true" {
		rev += "-dirty"
	}
	return rev
}
