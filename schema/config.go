package schema

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TaskMode selects how the task runner schedules work.
type TaskMode string

const (
	// TaskModeOrdered runs tasks one at a time in submission order.
	TaskModeOrdered TaskMode = "ordered"
	// TaskModeConcurrent runs every task on its own goroutine with no ordering.
	TaskModeConcurrent TaskMode = "concurrent"
)

// ServiceConfig defines defaults and limits for the session service.
type ServiceConfig struct {
	TaskMode           TaskMode
	MaxConcurrentTasks int
	// PromptTTL is how long user/host probes are reused. Zero probes on every prompt.
	PromptTTL          time.Duration
	SurfaceCdFailures  bool
	// ExpandHome makes `cd`, `cd ~` and `cd ~/x` resolve against the remote
	// home directory instead of joining onto the tracked directory.
	ExpandHome         bool
	TranscriptMaxLines int
	TempDir            string
	MaxReadBytes       int64

	SSHPort        int
	SSHTimeout     time.Duration
	KnownHostsPath string
	HostKeyPolicy  string
	// DisableAuditLogging disables audit trail debug logs for commands.
	DisableAuditLogging bool
}

// DefaultTranscriptMaxLines is the default transcript limit.
const DefaultTranscriptMaxLines = 5000

// DefaultMaxReadBytes bounds remote file reads for the editor.
const DefaultMaxReadBytes = 2 << 20

// DefaultSSHPort is used when no port is configured.
const DefaultSSHPort = 22

// DefaultSSHTimeout bounds connect attempts.
const DefaultSSHTimeout = 10 * time.Second

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	mode := TaskMode(strings.ToLower(strings.TrimSpace(string(cfg.TaskMode))))
	switch mode {
	case "":
		mode = TaskModeOrdered
	case TaskModeOrdered, TaskModeConcurrent:
	default:
		return ServiceConfig{}, errors.New("task mode must be ordered or concurrent")
	}
	cfg.TaskMode = mode
	if cfg.MaxConcurrentTasks < 0 {
		return ServiceConfig{}, errors.New("max concurrent tasks must not be negative")
	}
	if cfg.PromptTTL < 0 {
		return ServiceConfig{}, errors.New("prompt ttl must not be negative")
	}
	if cfg.SSHPort < 0 || cfg.SSHPort > 65535 {
		return ServiceConfig{}, errors.New("ssh port out of range")
	}
	if cfg.SSHPort == 0 {
		cfg.SSHPort = DefaultSSHPort
	}
	if cfg.SSHTimeout <= 0 {
		cfg.SSHTimeout = DefaultSSHTimeout
	}
	if cfg.TranscriptMaxLines <= 0 {
		cfg.TranscriptMaxLines = DefaultTranscriptMaxLines
	}
	if cfg.MaxReadBytes <= 0 {
		cfg.MaxReadBytes = DefaultMaxReadBytes
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	cfg.TempDir = filepath.Clean(cfg.TempDir)
	return cfg, nil
}
