package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/sshdesk"

// buildVersion is set via -ldflags "-X pkt.systems/sshdesk/internal/version.buildVersion=...".
var buildVersion = ""

// Current returns the best available version string without a dirty suffix.
func Current() string {
	if v := strings.TrimSpace(buildVersion); v != "" {
		return strings.TrimSuffix(v, "+dirty")
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "v0.0.0-unknown"
	}
	if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
		return strings.TrimSuffix(v, "+dirty")
	}
	if v := pseudoFromBuildInfo(info); v != "" {
		return v
	}
	return "v0.0.0-unknown"
}

// Module returns the module path from build info when available.
func Module() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if p := strings.TrimSpace(info.Main.Path); p != "" {
			return p
		}
	}
	return defaultModule
}

// SSHClientVersion is the identification string sent during the SSH handshake.
func SSHClientVersion() string {
	v := strings.TrimPrefix(Current(), "v")
	v = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' || r == '+' {
			return '.'
		}
		return r
	}, v)
	return "SSH-2.0-sshdesk_" + v
}

func pseudoFromBuildInfo(info *debug.BuildInfo) string {
	if info == nil {
		return ""
	}
	var revision, vcsTime string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.time":
			vcsTime = setting.Value
		}
	}
	if revision == "" || vcsTime == "" {
		return ""
	}
	parsed, err := time.Parse(time.RFC3339, vcsTime)
	if err != nil {
		return ""
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	return "v0.0.0-" + parsed.UTC().Format("20060102150405") + "-" + revision
}
