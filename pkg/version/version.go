// Package version exposes build metadata injected through -ldflags.
package version

import "runtime/debug"

//nolint:gochecknoglobals // set via -ldflags "-X github.com/carverauto/solarpulse/pkg/version.version=..."
var (
	version = "dev"
	buildID = "dev"
)

// GetVersion returns the release version, falling back to the module
// version recorded by the Go toolchain for `go install` builds.
func GetVersion() string {
	if version != "dev" {
		return version
	}

	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return version
}

// GetBuildID returns the build identifier.
func GetBuildID() string {
	return buildID
}

// GetFullVersion returns version with build ID.
func GetFullVersion() string {
	return GetVersion() + " (build: " + buildID + ")"
}
