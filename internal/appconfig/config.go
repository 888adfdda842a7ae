package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/sshdesk/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Hosts         HostsConfig   `mapstructure:"hosts" yaml:"hosts"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	Session       SessionConfig `mapstructure:"session" yaml:"session"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// HostsConfig locates the saved-connection store.
type HostsConfig struct {
	File         string `mapstructure:"file" yaml:"file"`
	KeyStorePath string `mapstructure:"key_store_path" yaml:"key_store_path"`
}

// SSHConfig configures outbound SSH connections.
type SSHConfig struct {
	Port           int    `mapstructure:"port" yaml:"port"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	KnownHostsPath string `mapstructure:"known_hosts_path" yaml:"known_hosts_path"`
	// HostKeyPolicy is accept-new, strict or insecure.
	HostKeyPolicy string `mapstructure:"host_key_policy" yaml:"host_key_policy"`
}

// SessionConfig controls the session service.
type SessionConfig struct {
	TaskMode           string `mapstructure:"task_mode" yaml:"task_mode"`
	MaxConcurrentTasks int    `mapstructure:"max_concurrent_tasks" yaml:"max_concurrent_tasks"`
	PromptTTLSeconds   int    `mapstructure:"prompt_ttl_seconds" yaml:"prompt_ttl_seconds"`
	SurfaceCdFailures  bool   `mapstructure:"surface_cd_failures" yaml:"surface_cd_failures"`
	ExpandHome         bool   `mapstructure:"expand_home" yaml:"expand_home"`
	TranscriptMaxLines int    `mapstructure:"transcript_max_lines" yaml:"transcript_max_lines"`
	TempDir            string `mapstructure:"temp_dir" yaml:"temp_dir"`
	MaxReadBytes       int64  `mapstructure:"max_read_bytes" yaml:"max_read_bytes"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	base := filepath.Join(home, ".sshdesk")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(base, "state"),
		Hosts: HostsConfig{
			File:         filepath.Join(base, "state", "hosts.enc"),
			KeyStorePath: filepath.Join(base, "state", "keys.bundle"),
		},
		SSH: SSHConfig{
			Port:           schema.DefaultSSHPort,
			TimeoutSeconds: int(schema.DefaultSSHTimeout / time.Second),
			KnownHostsPath: filepath.Join(base, "known_hosts"),
			HostKeyPolicy:  "accept-new",
		},
		Session: SessionConfig{
			TaskMode:           string(schema.TaskModeOrdered),
			MaxConcurrentTasks: 0,
			PromptTTLSeconds:   0,
			SurfaceCdFailures:  false,
			ExpandHome:         false,
			TranscriptMaxLines: schema.DefaultTranscriptMaxLines,
			TempDir:            filepath.Join(base, "state", "tmp"),
			MaxReadBytes:       schema.DefaultMaxReadBytes,
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sshdesk", "config.yaml"), nil
}

// ServiceConfig maps the file configuration onto the session service config.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		TaskMode:            schema.TaskMode(c.Session.TaskMode),
		MaxConcurrentTasks:  c.Session.MaxConcurrentTasks,
		PromptTTL:           time.Duration(c.Session.PromptTTLSeconds) * time.Second,
		SurfaceCdFailures:   c.Session.SurfaceCdFailures,
		ExpandHome:          c.Session.ExpandHome,
		TranscriptMaxLines:  c.Session.TranscriptMaxLines,
		TempDir:             c.Session.TempDir,
		MaxReadBytes:        c.Session.MaxReadBytes,
		SSHPort:             c.SSH.Port,
		SSHTimeout:          time.Duration(c.SSH.TimeoutSeconds) * time.Second,
		KnownHostsPath:      c.SSH.KnownHostsPath,
		HostKeyPolicy:       c.SSH.HostKeyPolicy,
		DisableAuditLogging: c.Logging.DisableAuditTrails,
	}
}
