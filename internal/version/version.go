// Package version records build identity reported over the API and CLI.
package version

// Set at build time via -ldflags "-X shuttle/internal/version.Version=...".
var (
	Name    = "shuttle"
	Version = "dev"
	// APIVersion changes when the observer wire format changes.
	APIVersion = "1"
)
