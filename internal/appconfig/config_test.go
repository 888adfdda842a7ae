package appconfig

import "testing"

func TestDefaultConfigKeepsStoreUnderStateDir(t *testing.T) {
	t.Setenv("HOME", "/home/operator")
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Hosts.File != "/home/operator/.sshdesk/state/hosts.enc" {
		t.Fatalf("unexpected hosts file %q", cfg.Hosts.File)
	}
	if cfg.Session.SurfaceCdFailures {
		t.Fatalf("expected cd failures to stay quiet by default")
	}
	if cfg.Session.ExpandHome {
		t.Fatalf("expected cd to join onto the tracked directory by default")
	}
	if cfg.ServiceConfig().PromptTTL != 0 {
		t.Fatalf("expected prompt probes on every prompt by default")
	}
}
