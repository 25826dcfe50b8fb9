// Package version derives the build version for log lines and user agents.
// An -ldflags override wins over VCS build info; "dev" is the fallback.
package version

import "runtime/debug"

// AppName prefixes every version string.
const AppName = "magpie"

// commitOverride is set via -ldflags for container builds without .git.
var commitOverride string

// GitCommit is the short commit hash, or "dev" when build info is missing
// (go test, non-git builds).
var GitCommit = resolveCommit()

func resolveCommit() string {
	if commitOverride != "" {
		return shorten(commitOverride)
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "magpie/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
