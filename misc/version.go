// Package misc keeps program identity helpers used by logging, reporting and
// the command line surface.
package misc

import (
	"runtime/debug"
)

const appName = "kpc"

// Populated by the linker on release builds, otherwise derived from build info.
var (
	version = ""
	gitHash = ""
)

// GetAppName returns short program name used for log prefixes, temporary
// files and report names.
func GetAppName() string {
	return appName
}

// GetVersion returns program version.
func GetVersion() string {
	if len(version) != 0 {
		return version
	}
	if bi, ok := debug.ReadBuildInfo(); ok && len(bi.Main.Version) != 0 {
		return bi.Main.Version
	}
	return "devel"
}

// GetGitHash returns VCS revision the program was built from.
func GetGitHash() string {
	if len(gitHash) != 0 {
		return gitHash
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return "unknown"
}
