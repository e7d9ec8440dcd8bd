// Package version carries the build metadata the release pipeline
// stamps into the streamer and archiver binaries.
//
// Stamp it with ldflags:
//
//	go build -ldflags "-X github.com/supernoba/marketstream/internal/version.Version=1.0.0 \
//	                   -X github.com/supernoba/marketstream/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/supernoba/marketstream/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	// Version is the semantic version of the build.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// String renders the stamped build info as "version/commit (built ...)".
func String() string {
	return Version + "/" + Commit + " (built " + BuildTime + ")"
}
