// Package version holds the build version, overridden at link time with
// -ldflags "-X github.com/getpup/pupsourcing-migrate/pkg/version.Version=...".
package version

// Version is the release version of the module.
var Version = "0.1.0-dev"
