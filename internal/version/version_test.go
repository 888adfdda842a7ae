package version

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"
)

func TestCurrentPrefersBuildVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v1.2.3+dirty"
	t.Cleanup(func() { buildVersion = old })

	if got := Current(); got != "v1.2.3" {
		t.Fatalf("expected build version, got %q", got)
	}
}

func TestPseudoFromBuildInfo(t *testing.T) {
	ts := time.Date(2025, time.January, 2, 3, 4, 5, 0, time.UTC)
	info := &debug.BuildInfo{
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "1234567890abcdef"},
			{Key: "vcs.time", Value: ts.Format(time.RFC3339)},
		},
	}
	if got := pseudoFromBuildInfo(info); got != "v0.0.0-20250102030405-1234567890ab" {
		t.Fatalf("unexpected pseudo version %q", got)
	}
	if pseudoFromBuildInfo(nil) != "" {
		t.Fatalf("expected empty version for nil build info")
	}
}

func TestSSHClientVersion(t *testing.T) {
	old := buildVersion
	buildVersion = "v0.4.1-rc 2"
	t.Cleanup(func() { buildVersion = old })

	got := SSHClientVersion()
	if got != "SSH-2.0-sshdesk_0.4.1.rc.2" {
		t.Fatalf("unexpected client version %q", got)
	}
	if strings.ContainsAny(got, " \r\n") {
		t.Fatalf("client version must not contain whitespace: %q", got)
	}
}
