package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPort is used when neither the host nor the config names a port.
const DefaultPort = 22

// DefaultTimeout bounds the TCP dial and SSH handshake.
const DefaultTimeout = 10 * time.Second

// Transport runs commands and file operations against one connected host.
type Transport interface {
	// Exec runs cmd and returns its captured stdout. A non-zero exit status is
	// not an error; whatever the command printed is returned.
	Exec(ctx context.Context, cmd string) ([]byte, error)
	// Upload copies localPath into remoteDir, keeping the base name, and
	// returns the remote path written.
	Upload(ctx context.Context, localPath, remoteDir string) (string, error)
	Download(ctx context.Context, remotePath, localPath string) error
	ListDirectory(ctx context.Context, remotePath string) ([]string, error)
	ReadFile(ctx context.Context, remotePath string) (string, error)
	// WriteFile copies the local file at localPath to remotePath.
	WriteFile(ctx context.Context, localPath, remotePath string) error
	Close() error
}

// Dialer opens transports.
type Dialer interface {
	Dial(ctx context.Context, cfg ConnectConfig) (Transport, error)
}

// ConnectConfig carries everything needed to open a session.
type ConnectConfig struct {
	Host   string
	Port   int
	User   string
	Secret string

	Timeout        time.Duration
	KnownHostsPath string
	HostKeyPolicy  HostKeyPolicy
	MaxReadBytes   int64
}

// Address returns host:port, honoring a port embedded in Host.
func (c ConnectConfig) Address() (string, error) {
	host := strings.TrimSpace(c.Host)
	if host == "" {
		return "", fmt.Errorf("host is required")
	}
	port := c.Port
	if h, p, err := net.SplitHostPort(host); err == nil {
		n, convErr := strconv.Atoi(p)
		if convErr != nil || n <= 0 || n > 65535 {
			return "", fmt.Errorf("invalid port %q", p)
		}
		host = h
		port = n
	}
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}
