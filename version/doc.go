// Package version carries the build information of pushflow binaries.
//
// Version, commit, branch, and build time are set at compile time via
// -ldflags; anything left empty is filled from the Go build info:
//
//	go build -ldflags "-X github.com/kbukum/pushflow/version.Version=1.0.0" ./cmd/streamd
//
// streamd logs Fields() at startup and serves Get() on /version.
package version
