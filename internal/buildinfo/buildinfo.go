// Package buildinfo holds values injected at link time, e.g.
//
//	go build -ldflags "-X github.com/and161185/toolkit-telemetry/internal/buildinfo.BuildVersion=1.4.0"
package buildinfo

import (
	"fmt"
	"io"
)

var (
	BuildVersion string
	BuildDate    string
	BuildCommit  string
)

// Version is reported as the product version in telemetry payloads.
func Version() string {
	if BuildVersion == "" {
		return "0.0.0-dev"
	}
	return BuildVersion
}

// PrintBuildInfo writes the build details, using N/A for unset values.
func PrintBuildInfo(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", orNA(BuildVersion))
	fmt.Fprintf(w, "Build date: %s\n", orNA(BuildDate))
	fmt.Fprintf(w, "Build commit: %s\n", orNA(BuildCommit))
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
