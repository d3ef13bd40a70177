package version

import (
	"fmt"
	"runtime"
)

// Build information, set at build time using ldflags:
//
//	go build -ldflags "-X github.com/zsiec/reel/pkg/version.Version=v1.2.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info contains version information.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo returns the version information.
func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String returns the long version string printed by -version.
func (i Info) String() string {
	return fmt.Sprintf("Reel %s (commit: %s, built: %s, go: %s, platform: %s)",
		i.Version, i.GitCommit, i.BuildTime, i.GoVersion, i.Platform)
}

// Short returns a short version string.
func (i Info) Short() string {
	return fmt.Sprintf("Reel %s", i.Version)
}

// UserAgent is sent by the HTTP upload backend.
func (i Info) UserAgent() string {
	return fmt.Sprintf("reel/%s (%s)", i.Version, i.Platform)
}
