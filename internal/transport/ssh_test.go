package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gliderssh "github.com/gliderlabs/ssh"
	"github.com/pkg/sftp"
	gossh "golang.org/x/crypto/ssh"
	"pkt.systems/sshdesk/schema"
)

const testPassword = "s3cret"

type fakeHost struct {
	addr    string
	execFn  func(cmd string) (string, int)
	server  *gliderssh.Server
	hostKey gossh.PublicKey
}

func startFakeHost(t *testing.T, execFn func(cmd string) (string, int)) *fakeHost {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	signer, err := gossh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	host := &fakeHost{execFn: execFn, hostKey: signer.PublicKey()}
	server := &gliderssh.Server{
		Handler: func(s gliderssh.Session) {
			out, code := host.execFn(s.RawCommand())
			_, _ = io.WriteString(s, out)
			_ = s.Exit(code)
		},
		PasswordHandler: func(_ gliderssh.Context, password string) bool {
			return password == testPassword
		},
		SubsystemHandlers: map[string]gliderssh.SubsystemHandler{
			"sftp": func(s gliderssh.Session) {
				srv, err := sftp.NewServer(s)
				if err != nil {
					return
				}
				_ = srv.Serve()
				_ = srv.Close()
			},
		},
	}
	server.AddHostKey(signer)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		_ = server.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = server.Close()
	})
	host.addr = ln.Addr().String()
	host.server = server
	return host
}

func (h *fakeHost) config(t *testing.T, password string) ConnectConfig {
	return ConnectConfig{
		Host:          h.addr,
		User:          "alice",
		Secret:        password,
		Timeout:       5 * time.Second,
		HostKeyPolicy: HostKeyInsecure,
	}
}

func dialFake(t *testing.T, host *fakeHost) Transport {
	t.Helper()
	tr, err := NewSSHDialer().Dial(context.Background(), host.config(t, testPassword))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = tr.Close()
	})
	return tr
}

func TestDialRejectsBadPasswordAsAuthFailure(t *testing.T) {
	host := startFakeHost(t, func(string) (string, int) { return "", 0 })
	_, err := NewSSHDialer().Dial(context.Background(), host.config(t, "wrong"))
	if !errors.Is(err, schema.ErrAuthFailure) {
		t.Fatalf("expected auth failure, got %v", err)
	}
}

func TestDialUnreachableIsConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	_, err = NewSSHDialer().Dial(context.Background(), ConnectConfig{
		Host:          addr,
		User:          "alice",
		Secret:        testPassword,
		Timeout:       2 * time.Second,
		HostKeyPolicy: HostKeyInsecure,
	})
	if !errors.Is(err, schema.ErrConnectFailure) {
		t.Fatalf("expected connect failure, got %v", err)
	}
}

func TestExecReturnsStdoutEvenOnNonZeroExit(t *testing.T) {
	var mu sync.Mutex
	var got []string
	host := startFakeHost(t, func(cmd string) (string, int) {
		mu.Lock()
		got = append(got, cmd)
		mu.Unlock()
		if cmd == "false" {
			return "partial\n", 1
		}
		return "/root\n", 0
	})
	tr := dialFake(t, host)

	out, err := tr.Exec(context.Background(), "pwd")
	if err != nil || string(out) != "/root\n" {
		t.Fatalf("unexpected exec result %q, %v", out, err)
	}
	out, err = tr.Exec(context.Background(), "false")
	if err != nil {
		t.Fatalf("non-zero exit should not fail: %v", err)
	}
	if string(out) != "partial\n" {
		t.Fatalf("expected captured stdout, got %q", out)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "pwd" {
		t.Fatalf("unexpected commands %v", got)
	}
}

func TestExecAfterCloseIsNotConnected(t *testing.T) {
	host := startFakeHost(t, func(string) (string, int) { return "", 0 })
	tr := dialFake(t, host)
	_ = tr.Close()
	if _, err := tr.Exec(context.Background(), "pwd"); !errors.Is(err, schema.ErrNotConnected) {
		t.Fatalf("expected not connected, got %v", err)
	}
}

func TestFileOperationsOverSFTP(t *testing.T) {
	host := startFakeHost(t, func(string) (string, int) { return "", 0 })
	tr := dialFake(t, host)
	ctx := context.Background()

	local := t.TempDir()
	remote := t.TempDir()
	src := filepath.Join(local, "notes.txt")
	if err := os.WriteFile(src, []byte("hello\n"), 0o600); err != nil {
		t.Fatalf("write local: %v", err)
	}

	remotePath, err := tr.Upload(ctx, src, remote)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if remotePath != filepath.ToSlash(filepath.Join(remote, "notes.txt")) {
		t.Fatalf("unexpected remote path %q", remotePath)
	}

	names, err := tr.ListDirectory(ctx, remote)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "notes.txt" {
		t.Fatalf("unexpected entries %v", names)
	}

	content, err := tr.ReadFile(ctx, remotePath)
	if err != nil || content != "hello\n" {
		t.Fatalf("unexpected read %q, %v", content, err)
	}

	edited := filepath.Join(local, "edited")
	if err := os.WriteFile(edited, []byte("bye\n"), 0o600); err != nil {
		t.Fatalf("write edited: %v", err)
	}
	if err := tr.WriteFile(ctx, edited, remotePath); err != nil {
		t.Fatalf("write remote: %v", err)
	}

	dst := filepath.Join(local, "out", "copy.txt")
	if err := tr.Download(ctx, remotePath, dst); err != nil {
		t.Fatalf("download: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "bye\n" {
		t.Fatalf("unexpected download %q, %v", data, err)
	}
}

func TestReadFileHonorsLimit(t *testing.T) {
	host := startFakeHost(t, func(string) (string, int) { return "", 0 })
	cfg := host.config(t, testPassword)
	cfg.MaxReadBytes = 4
	tr, err := NewSSHDialer().Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	remote := filepath.Join(t.TempDir(), "big")
	if err := os.WriteFile(remote, []byte("0123456789"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err = tr.ReadFile(context.Background(), remote)
	if !errors.Is(err, schema.ErrOperationFailed) || !errors.Is(err, schema.ErrReadRefused) {
		t.Fatalf("expected refused read, got %v", err)
	}
	if _, err := tr.ReadFile(context.Background(), filepath.Dir(remote)); !errors.Is(err, schema.ErrReadRefused) {
		t.Fatalf("expected refused directory read, got %v", err)
	}
}

func TestAcceptNewRecordsHostKey(t *testing.T) {
	host := startFakeHost(t, func(string) (string, int) { return "", 0 })
	knownHosts := filepath.Join(t.TempDir(), "ssh", "known_hosts")
	cfg := host.config(t, testPassword)
	cfg.HostKeyPolicy = HostKeyAcceptNew
	cfg.KnownHostsPath = knownHosts

	tr, err := NewSSHDialer().Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = tr.Close()

	data, err := os.ReadFile(knownHosts)
	if err != nil {
		t.Fatalf("read known hosts: %v", err)
	}
	if !strings.Contains(string(data), strings.TrimSpace(string(gossh.MarshalAuthorizedKey(host.hostKey)))) {
		t.Fatalf("expected host key recorded, got %q", data)
	}

	cfg.HostKeyPolicy = HostKeyStrict
	tr, err = NewSSHDialer().Dial(context.Background(), cfg)
	if err != nil {
		t.Fatalf("strict dial after accept-new: %v", err)
	}
	_ = tr.Close()
}

func TestStrictRejectsUnknownHost(t *testing.T) {
	host := startFakeHost(t, func(string) (string, int) { return "", 0 })
	knownHosts := filepath.Join(t.TempDir(), "known_hosts")
	if err := os.WriteFile(knownHosts, nil, 0o600); err != nil {
		t.Fatalf("write known hosts: %v", err)
	}
	cfg := host.config(t, testPassword)
	cfg.HostKeyPolicy = HostKeyStrict
	cfg.KnownHostsPath = knownHosts

	_, err := NewSSHDialer().Dial(context.Background(), cfg)
	if !errors.Is(err, schema.ErrProtocolFailure) {
		t.Fatalf("expected protocol failure, got %v", err)
	}
}

func TestConnectConfigAddress(t *testing.T) {
	cases := []struct {
		cfg  ConnectConfig
		want string
	}{
		{ConnectConfig{Host: "example.org"}, "example.org:22"},
		{ConnectConfig{Host: "example.org", Port: 2222}, "example.org:2222"},
		{ConnectConfig{Host: "10.0.0.1:2200", Port: 22}, "10.0.0.1:2200"},
	}
	for _, tc := range cases {
		got, err := tc.cfg.Address()
		if err != nil {
			t.Fatalf("address %q: %v", tc.cfg.Host, err)
		}
		if got != tc.want {
			t.Fatalf("address %q: expected %q, got %q", tc.cfg.Host, tc.want, got)
		}
	}
	if _, err := (ConnectConfig{}).Address(); err == nil {
		t.Fatalf("expected error for empty host")
	}
}

func TestParseHostKeyPolicy(t *testing.T) {
	if p, err := ParseHostKeyPolicy(""); err != nil || p != HostKeyAcceptNew {
		t.Fatalf("expected accept-new default, got %q, %v", p, err)
	}
	if p, err := ParseHostKeyPolicy(" Strict "); err != nil || p != HostKeyStrict {
		t.Fatalf("expected strict, got %q, %v", p, err)
	}
	if _, err := ParseHostKeyPolicy("yolo"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
