// Package buildinfo holds version details stamped into the reconcile binary.
package buildinfo

// Set via -ldflags "-X github.com/cleared-dev/reconcile/internal/buildinfo.Version=..." at release.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)
