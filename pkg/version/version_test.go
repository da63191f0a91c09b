package version

import "testing"

func TestDefaults(t *testing.T) {
	if Version != "dev" {
		t.Errorf("default Version = %q, want %q", Version, "dev")
	}
	if GitCommit != "unknown" {
		t.Errorf("default GitCommit = %q, want %q", GitCommit, "unknown")
	}
	if got := Info(); got != "dev (unknown) built unknown" {
		t.Errorf("Info() = %q", got)
	}
}

func TestSSHClientVersion(t *testing.T) {
	saved := Version
	defer func() { Version = saved }()

	tests := []struct {
		version string
		want    string
	}{
		{"dev", "SSH-2.0-cfgpush_dev"},
		{"v1.2.0", "SSH-2.0-cfgpush_1.2.0"},
		{"v1.2.0-rc1", "SSH-2.0-cfgpush_1.2.0_rc1"},
	}
	for _, tt := range tests {
		Version = tt.version
		if got := SSHClientVersion(); got != tt.want {
			t.Errorf("SSHClientVersion() for %q = %q, want %q", tt.version, got, tt.want)
		}
	}
}
