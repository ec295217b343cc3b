// Package version exposes the build identity stamped into the dramaload
// binary at release time.
package version

import "runtime"

// Populated through -ldflags at build time; the defaults mark a local build.
var (
	Version   = "dev"
	Commit    = "unknown"
	Date      = "unknown"
	GoVersion = runtime.Version()
)

// Info bundles the build identity for the health endpoint and startup log.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"goVersion"`
}

// Get snapshots the stamped build identity.
func Get() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
	}
}

// String renders the version, with the commit when one was stamped.
func (i Info) String() string {
	if i.Commit != "unknown" && i.Commit != "" {
		return i.Version + " (" + i.Commit + ")"
	}
	return i.Version
}
