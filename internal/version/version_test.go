package version

import (
	"strings"
	"testing"
)

func TestStamp(t *testing.T) {
	tests := []struct {
		name        string
		version     string
		commit      string
		settings    map[string]string
		wantVersion string
		wantCommit  string
	}{
		{
			name:        "clean checkout",
			settings:    map[string]string{"vcs.revision": "0123456789abcdef", "vcs.time": "2024-03-01T10:00:00Z"},
			wantVersion: "dev-20240301",
			wantCommit:  "0123456",
		},
		{
			name:        "dirty tree",
			settings:    map[string]string{"vcs.revision": "abc", "vcs.modified": "true"},
			wantVersion: "",
			wantCommit:  "abc-dirty",
		},
		{
			name:        "ldflags win",
			version:     "v1.0.0",
			commit:      "feed",
			settings:    map[string]string{"vcs.revision": "0123456789", "vcs.time": "2024-03-01T10:00:00Z"},
			wantVersion: "v1.0.0",
			wantCommit:  "feed",
		},
		{
			name:        "bad time",
			settings:    map[string]string{"vcs.time": "yesterday"},
			wantVersion: "",
			wantCommit:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, c := stamp(tt.version, tt.commit, tt.settings)
			if v != tt.wantVersion {
				t.Errorf("stamp() version = %q, want %q", v, tt.wantVersion)
			}
			if c != tt.wantCommit {
				t.Errorf("stamp() commit = %q, want %q", c, tt.wantCommit)
			}
		})
	}
}

func TestFull(t *testing.T) {
	if Version == "" || Commit == "" {
		t.Fatal("Version and Commit should be set after init")
	}
	if got := Full(); !strings.Contains(got, Version) || !strings.Contains(got, Commit) {
		t.Errorf("Full() = %q, want version and commit", got)
	}
}

func TestPlatform(t *testing.T) {
	if got := Platform(); !strings.HasPrefix(got, "go") {
		t.Errorf("Platform() = %q, want a Go version prefix", got)
	}
}
