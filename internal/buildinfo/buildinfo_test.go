package buildinfo

import (
	"runtime/debug"
	"testing"
)

func TestSummary(t *testing.T) {
	original := readBuildInfo
	t.Cleanup(func() {
		readBuildInfo = original
		Version, Commit, Date = "", "", ""
	})

	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "(devel)"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef"},
				{Key: "vcs.time", Value: "2024-03-09T14:30:00Z"},
			},
		}, true
	}

	tests := []struct {
		name                  string
		version, commit, date string
		want                  string
	}{
		{name: "falls back to embedded vcs data", want: "dev (0123456 2024-03-09T14:30:00Z)"},
		{name: "ldflags win", version: "v1.2.0", commit: "abc", date: "2024-01-01", want: "v1.2.0 (abc 2024-01-01)"},
		{name: "version with embedded commit", version: "v1.2.0", want: "v1.2.0 (0123456 2024-03-09T14:30:00Z)"},
	}
	for _, tt := range tests {
		Version, Commit, Date = tt.version, tt.commit, tt.date
		if got := Summary(); got != tt.want {
			t.Errorf("%s: Summary() = %q, want %q", tt.name, got, tt.want)
		}
	}

	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
	Version, Commit, Date = "", "", ""
	if got := Summary(); got != "dev" {
		t.Errorf("Summary() without build info = %q, want dev", got)
	}
}
