// Package version provides build version information for voxkit.
// Version variables can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/voxkit/voxkit/version.version=1.0.0"
package version

import (
	"fmt"
	"runtime/debug"
)

const (
	// devVersion is the default version when not set via ldflags.
	devVersion = "dev"
	// shortCommitLen is the length of the short commit hash.
	shortCommitLen = 7
	// vcsRevisionKey is the build info key for the git commit.
	vcsRevisionKey = "vcs.revision"
	// vcsModifiedKey is the build info key for dirty state.
	vcsModifiedKey = "vcs.modified"
)

// Build-time variables, overridable with -ldflags.
var (
	version   = devVersion
	gitCommit = ""
)

// Version returns the current version string, falling back to module build
// info when no ldflags version was set.
func Version() string {
	if version != devVersion {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return devVersion
}

// Commit returns the short git commit hash, suffixed with "-dirty" when
// the build tree had local modifications.
func Commit() string {
	if gitCommit != "" {
		return shorten(gitCommit)
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	commit := ""
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case vcsRevisionKey:
			commit = setting.Value
		case vcsModifiedKey:
			dirty = setting.Value == "true"
		}
	}
	if commit == "" {
		return ""
	}
	commit = shorten(commit)
	if dirty {
		commit += "-dirty"
	}
	return commit
}

// String returns the full version line for health endpoints and logs.
func String() string {
	if c := Commit(); c != "" {
		return fmt.Sprintf("%s (%s)", Version(), c)
	}
	return Version()
}

func shorten(commit string) string {
	if len(commit) > shortCommitLen {
		return commit[:shortCommitLen]
	}
	return commit
}
