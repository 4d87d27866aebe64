// Package buildinfo carries version metadata stamped at build time via
// -ldflags.
package buildinfo

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
