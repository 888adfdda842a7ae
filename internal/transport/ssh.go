package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	cryptossh "golang.org/x/crypto/ssh"
	"pkt.systems/pslog"
	"pkt.systems/sshdesk/internal/version"
	"pkt.systems/sshdesk/schema"
)

// SSHDialer opens SSH transports.
type SSHDialer struct {
	logger pslog.Logger
}

// NewSSHDialer returns a dialer without logging.
func NewSSHDialer() *SSHDialer {
	return NewSSHDialerWithLogger(nil)
}

// NewSSHDialerWithLogger returns a dialer that logs connect outcomes.
func NewSSHDialerWithLogger(logger pslog.Logger) *SSHDialer {
	return &SSHDialer{logger: logger}
}

// Dial connects and authenticates. Errors wrap schema.ErrAuthFailure,
// schema.ErrProtocolFailure or schema.ErrConnectFailure.
func (d *SSHDialer) Dial(ctx context.Context, cfg ConnectConfig) (Transport, error) {
	addr, err := cfg.Address()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrConnectFailure, err)
	}
	hostKeyCallback, err := HostKeyCallback(cfg.HostKeyPolicy, cfg.KnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrConnectFailure, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clientCfg := &cryptossh.ClientConfig{
		User:            cfg.User,
		Auth:            authMethods(cfg.Secret),
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
		ClientVersion:   version.SSHClientVersion(),
	}

	type dialResult struct {
		client *cryptossh.Client
		err    error
	}
	ch := make(chan dialResult, 1)
	go func() {
		cl, err := cryptossh.Dial("tcp", addr, clientCfg)
		ch <- dialResult{cl, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				_ = r.client.Close()
			}
		}()
		if d.logger != nil {
			d.logger.Warn("ssh connect canceled", "addr", addr, "user", cfg.User)
		}
		return nil, fmt.Errorf("%w: %v", schema.ErrConnectFailure, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			classified := classifyDialError(r.err)
			if d.logger != nil {
				d.logger.Warn("ssh connect failed", "addr", addr, "user", cfg.User, "err", r.err)
			}
			return nil, fmt.Errorf("%w: dial %s: %v", classified, addr, r.err)
		}
		if d.logger != nil {
			d.logger.Info("ssh connect ok", "addr", addr, "user", cfg.User)
		}
		return &SSHTransport{client: r.client, maxRead: cfg.MaxReadBytes, logger: d.logger}, nil
	}
}

// authMethods offers public key auth when the secret is a private key and
// password auth otherwise.
func authMethods(secret string) []cryptossh.AuthMethod {
	if strings.Contains(secret, "PRIVATE KEY-----") {
		if signer, err := cryptossh.ParsePrivateKey([]byte(secret)); err == nil {
			return []cryptossh.AuthMethod{cryptossh.PublicKeys(signer)}
		}
	}
	return []cryptossh.AuthMethod{
		cryptossh.Password(secret),
		cryptossh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = secret
			}
			return answers, nil
		}),
	}
}

func classifyDialError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "no supported methods remain"):
		return schema.ErrAuthFailure
	case strings.Contains(msg, "ssh: handshake failed"):
		return schema.ErrProtocolFailure
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return schema.ErrConnectFailure
	}
	if strings.HasPrefix(msg, "ssh: ") {
		return schema.ErrProtocolFailure
	}
	return schema.ErrConnectFailure
}

// SSHTransport runs commands over exec sessions and file operations over a
// lazily opened SFTP subsystem.
type SSHTransport struct {
	client  *cryptossh.Client
	maxRead int64
	logger  pslog.Logger

	mu     sync.Mutex
	sftp   *sftp.Client
	closed bool
}

// Exec runs cmd in a fresh session and returns stdout.
func (t *SSHTransport) Exec(ctx context.Context, cmd string) ([]byte, error) {
	if err := t.usable(ctx); err != nil {
		return nil, err
	}
	session, err := t.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: ssh session: %v", schema.ErrOperationFailed, err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()
	select {
	case <-ctx.Done():
		_ = session.Close()
		return nil, fmt.Errorf("%w: %v", schema.ErrOperationFailed, ctx.Err())
	case err := <-done:
		if err != nil {
			var exitErr *cryptossh.ExitError
			var missingErr *cryptossh.ExitMissingError
			if !errors.As(err, &exitErr) && !errors.As(err, &missingErr) {
				return nil, fmt.Errorf("%w: exec: %v", schema.ErrOperationFailed, err)
			}
		}
		return stdout.Bytes(), nil
	}
}

// Close releases the SFTP subsystem and the SSH connection.
func (t *SSHTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.sftp != nil {
		_ = t.sftp.Close()
		t.sftp = nil
	}
	return t.client.Close()
}

func (t *SSHTransport) usable(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", schema.ErrOperationFailed, err)
	}
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return schema.ErrNotConnected
	}
	return nil
}

var _ Transport = (*SSHTransport)(nil)
var _ Dialer = (*SSHDialer)(nil)
