package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cryptossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyPolicy selects how unknown or changed host keys are handled.
type HostKeyPolicy string

const (
	// HostKeyAcceptNew records keys of unseen hosts and rejects changed keys.
	HostKeyAcceptNew HostKeyPolicy = "accept-new"
	// HostKeyStrict only accepts hosts already present in known_hosts.
	HostKeyStrict HostKeyPolicy = "strict"
	// HostKeyInsecure accepts every host key.
	HostKeyInsecure HostKeyPolicy = "insecure"
)

// ParseHostKeyPolicy normalizes a policy name. Empty means accept-new.
func ParseHostKeyPolicy(value string) (HostKeyPolicy, error) {
	switch policy := HostKeyPolicy(strings.ToLower(strings.TrimSpace(value))); policy {
	case "":
		return HostKeyAcceptNew, nil
	case HostKeyAcceptNew, HostKeyStrict, HostKeyInsecure:
		return policy, nil
	default:
		return "", fmt.Errorf("unknown host key policy %q", value)
	}
}

var knownHostsMu sync.Mutex

// HostKeyCallback builds the callback for policy backed by the known_hosts file at path.
func HostKeyCallback(policy HostKeyPolicy, path string) (cryptossh.HostKeyCallback, error) {
	policy, err := ParseHostKeyPolicy(string(policy))
	if err != nil {
		return nil, err
	}
	if policy == HostKeyInsecure {
		return cryptossh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-in
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("known hosts path is required for policy %s", policy)
	}
	if policy == HostKeyAcceptNew {
		if err := ensureKnownHostsFile(path); err != nil {
			return nil, err
		}
	}
	check, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	if policy == HostKeyStrict {
		return check, nil
	}
	return func(hostname string, remote net.Addr, key cryptossh.PublicKey) error {
		err := check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if err == nil || !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}
		return appendKnownHost(path, hostname, key)
	}, nil
}

func ensureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create known hosts dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create known hosts: %w", err)
	}
	return f.Close()
}

func appendKnownHost(path, hostname string, key cryptossh.PublicKey) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open known hosts: %w", err)
	}
	line := knownhosts.Line([]string{knownhosts.Normalize(hostname)}, key)
	if _, err := f.WriteString(line + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write known hosts: %w", err)
	}
	return f.Close()
}
