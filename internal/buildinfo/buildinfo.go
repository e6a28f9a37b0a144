// Package buildinfo holds the version data stamped in at link time:
//
//	go build -ldflags "-X github.com/santinotanus/medtrace/internal/buildinfo.Version=1.2.0 \
//	  -X github.com/santinotanus/medtrace/internal/buildinfo.Date=$(date -u +%F) \
//	  -X github.com/santinotanus/medtrace/internal/buildinfo.Commit=$(git rev-parse --short HEAD)" ./cmd/cli
package buildinfo

import (
	"fmt"
	"io"
)

var (
	Version string
	Date    string
	Commit  string
)

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// PrintBuildData writes the build version, date and commit to w.
func PrintBuildData(w io.Writer) {
	fmt.Fprintf(w, "Build version: %s\n", orNA(Version))
	fmt.Fprintf(w, "Build date: %s\n", orNA(Date))
	fmt.Fprintf(w, "Build commit: %s\n", orNA(Commit))
}
