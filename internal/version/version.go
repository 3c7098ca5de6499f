// Package version reports which snippet-relay build is running. It backs the `version`
// command, the GET /version endpoint, the startup log line and the service.version
// attribute on traces.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/r9s-ai/snippet-relay/internal/version.Version=v0.3.0 \
//	  -X github.com/r9s-ai/snippet-relay/internal/version.Commit=$(git rev-parse HEAD) \
//	  -X github.com/r9s-ai/snippet-relay/internal/version.BuildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Info is the JSON body of GET /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is what `snippet-relay version` prints.
func (i Info) String() string {
	return fmt.Sprintf("snippet-relay %s\ncommit: %s\nbuilt at: %s\ngo version: %s\nplatform: %s",
		i.Version, i.Commit, i.BuildDate, i.GoVersion, i.Platform)
}

// Short is the one-token form used in logs and as the trace service version, e.g.
// "v0.3.0 (1a2b3c4)".
func Short() string {
	if Commit == "unknown" || len(Commit) < 7 {
		return Version
	}
	return fmt.Sprintf("%s (%s)", Version, Commit[:7])
}
