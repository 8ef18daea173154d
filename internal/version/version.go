// Package version holds the build identity stamped in by the linker.
// Release builds set these with -ldflags -X; a plain go build reports
// dev/unknown.
package version

import "fmt"

var (
	// Version is the semantic version of this build.
	Version = "dev"
	// GitSHA is the commit the build was cut from.
	GitSHA = "unknown"
	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"
)

// Short returns version and commit, the form used in startup logs.
func Short() string {
	return fmt.Sprintf("%s (%s)", Version, GitSHA)
}

// String returns the full banner printed by the -version flag.
func String() string {
	return fmt.Sprintf("%s (%s) built %s", Version, GitSHA, BuildTime)
}
