// Package version holds build metadata injected with -ldflags, e.g.
//
//	-X github.com/guimove/fleetfit/pkg/version.Version=v0.3.0
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)
