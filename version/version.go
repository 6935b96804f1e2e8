package version

import (
	"runtime"
	"runtime/debug"
)

// ServiceName identifies this service in version and health payloads.
const ServiceName = "alerts-service"

// Version is populated at build time via -ldflags; the VCS fields fall back
// to the build info stamped by the toolchain.
var Version = "dev"

// Info is the /version payload.
type Info struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitSHA    string `json:"gitSha,omitempty"`
	BuildTime string `json:"buildTime,omitempty"`
	GoVersion string `json:"goVersion"`
}

// Get assembles the build metadata served on /version.
func Get() Info {
	info := Info{
		Service:   ServiceName,
		Version:   Version,
		GoVersion: runtime.Version(),
	}
	if build, ok := debug.ReadBuildInfo(); ok {
		for _, s := range build.Settings {
			switch s.Key {
			case "vcs.revision":
				info.GitSHA = s.Value
			case "vcs.time":
				info.BuildTime = s.Value
			}
		}
	}
	return info
}
