// Package version exposes build-time version metadata.
package version

var (
	// Version is the semantic version, injected via ldflags.
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash, injected via ldflags.
	GitCommit = "unknown"

	// BuildTime is the build timestamp, injected via ldflags.
	BuildTime = "unknown"
)

// Info formats the full version line.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
