package internal

import (
	"runtime/debug"
	"time"
)

// Build information read from the vcs stamp of the binary.
var (
	BuildRevision      = "unknown"
	BuildRevisionTime  = time.Time{}
	BuildLocalModified = "unknown"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	readSettings(info.Settings)
}

func readSettings(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			BuildRevision = s.Value
		case "vcs.time":
			t, err := time.Parse(time.RFC3339, s.Value)
			if err == nil {
				BuildRevisionTime = t
			}
		case "vcs.modified":
			BuildLocalModified = s.Value
		}
	}
}

// ShortRevision returns an abbreviated revision for cache busting static
// files, marked "-dirty" for builds with local modifications.
func ShortRevision() string {
	rev := BuildRevision
	if len(rev) > 12 {
		rev = rev[:12]
	}

	if BuildLocalModified == "true" {
		rev += "-dirty"
	}

	return rev
}
