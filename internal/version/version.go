// Package version carries build metadata injected through ldflags.
package version

import "runtime"

var (
	// Version is the release tag, set with -X at build time.
	Version = "dev"
	// Commit is the git commit hash.
	Commit = "none"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// Info is build metadata in a form suitable for JSON output.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

// Get returns the current build metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildDate: BuildDate, GoVersion: runtime.Version()}
}

// String returns formatted version information.
func String() string {
	return Version + " (commit: " + Commit + ", built: " + BuildDate + ")"
}
