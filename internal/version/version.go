// Package version carries the build metadata stamped into the bookqa binary.
//
// Release builds overwrite these via -ldflags, e.g.:
//
//	go build -ldflags "-X github.com/roboverse/bookqa-go/internal/version.Version=v0.3.0 \
//	  -X github.com/roboverse/bookqa-go/internal/version.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/roboverse/bookqa-go/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// Plain `go build` keeps the defaults below so a dev binary still reports
// something sensible.
package version

// Version is the release tag, or "dev" for unstamped builds.
var Version = "dev"

// Commit is the short git SHA the binary was built from.
var Commit = "unknown"

// BuildDate is the UTC build timestamp in RFC3339.
var BuildDate = "unknown"
