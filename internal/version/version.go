// Package version holds build metadata injected through -ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/metadeploy/internal/version.Version=v1.0.0"
package version

import "fmt"

var (
	Version   = "unknown"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version with commit and build time for --version output.
func String() string {
	if GitCommit == "unknown" && BuildTime == "unknown" {
		return Version
	}
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
