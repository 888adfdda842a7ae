package appconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"pkt.systems/sshdesk/internal/transport"
	"pkt.systems/sshdesk/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("hosts.file", cfg.Hosts.File)
	v.SetDefault("hosts.key_store_path", cfg.Hosts.KeyStorePath)
	v.SetDefault("ssh.port", cfg.SSH.Port)
	v.SetDefault("ssh.timeout_seconds", cfg.SSH.TimeoutSeconds)
	v.SetDefault("ssh.known_hosts_path", cfg.SSH.KnownHostsPath)
	v.SetDefault("ssh.host_key_policy", cfg.SSH.HostKeyPolicy)
	v.SetDefault("session.task_mode", cfg.Session.TaskMode)
	v.SetDefault("session.max_concurrent_tasks", cfg.Session.MaxConcurrentTasks)
	v.SetDefault("session.prompt_ttl_seconds", cfg.Session.PromptTTLSeconds)
	v.SetDefault("session.surface_cd_failures", cfg.Session.SurfaceCdFailures)
	v.SetDefault("session.expand_home", cfg.Session.ExpandHome)
	v.SetDefault("session.transcript_max_lines", cfg.Session.TranscriptMaxLines)
	v.SetDefault("session.temp_dir", cfg.Session.TempDir)
	v.SetDefault("session.max_read_bytes", cfg.Session.MaxReadBytes)
	v.SetDefault("logging.disable_audit_trails", cfg.Logging.DisableAuditTrails)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	if _, err := transport.ParseHostKeyPolicy(cfg.SSH.HostKeyPolicy); err != nil {
		return fmt.Errorf("ssh.host_key_policy: %w", err)
	}
	if cfg.SSH.TimeoutSeconds < 0 {
		return fmt.Errorf("ssh.timeout_seconds must not be negative")
	}
	if cfg.Session.PromptTTLSeconds < 0 {
		return fmt.Errorf("session.prompt_ttl_seconds must not be negative")
	}
	if strings.TrimSpace(cfg.Hosts.File) == "" {
		return fmt.Errorf("hosts.file is required")
	}
	if strings.TrimSpace(cfg.Hosts.KeyStorePath) == "" {
		return fmt.Errorf("hosts.key_store_path is required")
	}
	if _, err := schema.NormalizeServiceConfig(cfg.ServiceConfig()); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Hosts.File = expandEnv(cfg.Hosts.File)
	cfg.Hosts.KeyStorePath = expandEnv(cfg.Hosts.KeyStorePath)
	cfg.SSH.KnownHostsPath = expandEnv(cfg.SSH.KnownHostsPath)
	cfg.Session.TempDir = expandEnv(cfg.Session.TempDir)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
