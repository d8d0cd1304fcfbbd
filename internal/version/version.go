// Package version holds the build metadata reported by ambiplay --version.
// The values are overridden at build time with -ldflags -X.
package version

var (
	// Version is the current ambiplay release version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
