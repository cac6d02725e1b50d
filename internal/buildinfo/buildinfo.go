package buildinfo

import "time"

// Set via -ldflags "-X github.com/xelth-com/salonsync/internal/buildinfo.CommitHash=..."
var (
	BuildTime  string
	CommitHash string
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC()

// Info is the build and uptime summary reported by the health endpoint
type Info struct {
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	StartedAt string `json:"started_at"`
	Uptime    string `json:"uptime"`
}

// Current returns Info as of now
func Current() Info {
	return Info{
		Commit:    CommitHash,
		BuildTime: BuildTime,
		StartedAt: StartTime.Format(time.RFC3339),
		Uptime:    time.Since(StartTime).Truncate(time.Second).String(),
	}
}
