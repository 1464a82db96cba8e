// Package version carries build identification stamped in via -ldflags.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build identification for -version output.
func String() string {
	return fmt.Sprintf("cortex %s (%s, built %s)", Version, GitSHA, BuildTime)
}
