package version

import (
	"fmt"
	"runtime"
)

// Set at build time with -ldflags "-X github.com/aaronlmathis/bladetemp/internal/version.Version=..."
var (
	Version   = "v0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// Info is the payload served on /version
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
}

// Get returns the version information
func Get() Info {
	return Info{
		Name:      "bladetemp",
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: GoVersion,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s)",
		i.Name, i.Version, i.GitCommit, i.BuildDate, i.GoVersion)
}
