// Package buildinfo reports the devserver version.
package buildinfo

import "runtime/debug"

// Version metadata is injected at build time via ldflags. When it is not, Summary falls back
// to what the Go toolchain embedded in the binary.
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// Summary returns a human-readable version summary string such as "v1.2.0 (abc1234 2024-03-09)".
func Summary() string {
	version, commit, date := Version, Commit, Date
	if version == "" || commit == "" {
		if info, ok := readBuildInfo(); ok {
			if version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
				version = info.Main.Version
			}
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					if commit == "" {
						commit = shortRevision(setting.Value)
					}
				case "vcs.time":
					if date == "" {
						date = setting.Value
					}
				}
			}
		}
	}
	if version == "" {
		version = "dev"
	}

	switch {
	case commit != "" && date != "":
		return version + " (" + commit + " " + date + ")"
	case commit != "":
		return version + " (" + commit + ")"
	case date != "":
		return version + " (" + date + ")"
	}
	return version
}

func shortRevision(rev string) string {
	if len(rev) > 7 {
		return rev[:7]
	}
	return rev
}
