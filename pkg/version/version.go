// Package version exposes build metadata stamped in at link time.
package version

// Set via -ldflags "-X github.com/tactician-chess/tactician/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
