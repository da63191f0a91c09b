// Package version carries build metadata for cfgpush.
package version

import "strings"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/cfgpush/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/cfgpush/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/cfgpush/pkg/version.BuildDate=2026-01-01T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	return Version + " (" + GitCommit + ") built " + BuildDate
}

// SSHClientVersion is the identification string sent to devices. RFC 4253
// forbids spaces and '-' in the software version part.
func SSHClientVersion() string {
	v := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.TrimPrefix(Version, "v"))
	return "SSH-2.0-cfgpush_" + v
}
