package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pkt.systems/sshdesk/internal/transport"
	"pkt.systems/sshdesk/schema"
)

var errTest = errors.New("test failure")

// fakeTransport records every command and answers through hooks.
type fakeTransport struct {
	mu       sync.Mutex
	commands []string
	closed   bool

	execFn     func(cmd string) (string, error)
	writeFn    func(localPath, remotePath string) error
	uploadFn   func(localPath, remoteDir string) (string, error)
	downloadFn func(remotePath, localPath string) error
	listFn     func(remotePath string) ([]string, error)
	readFn     func(remotePath string) (string, error)
}

// hostFake answers pwd/whoami/hostname and cd confirmations like a shell
// whose only existing directories are listed in dirs.
func hostFake(user, host, start string, dirs ...string) *fakeTransport {
	exists := map[string]bool{start: true}
	for _, d := range dirs {
		exists[d] = true
	}
	return &fakeTransport{execFn: func(cmd string) (string, error) {
		switch cmd {
		case "pwd":
			return start + "\n", nil
		case "whoami":
			return user + "\n", nil
		case "hostname":
			return host + "\n", nil
		}
		if target, ok := cdTarget(cmd); ok {
			if exists[target] {
				return target + "\n", nil
			}
			return "", nil
		}
		return "ran: " + cmd + "\n", nil
	}}
}

func cdTarget(cmd string) (string, bool) {
	if !strings.HasPrefix(cmd, "cd ") || !strings.HasSuffix(cmd, " && pwd") {
		return "", false
	}
	target := strings.TrimSuffix(strings.TrimPrefix(cmd, "cd "), " && pwd")
	return strings.Trim(target, "'"), true
}

func (f *fakeTransport) Exec(_ context.Context, cmd string) ([]byte, error) {
	f.mu.Lock()
	closed := f.closed
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	if closed {
		return nil, schema.ErrNotConnected
	}
	if f.execFn == nil {
		return nil, nil
	}
	out, err := f.execFn(cmd)
	return []byte(out), err
}

func (f *fakeTransport) Upload(_ context.Context, localPath, remoteDir string) (string, error) {
	if f.uploadFn == nil {
		return "", errors.New("upload not configured")
	}
	return f.uploadFn(localPath, remoteDir)
}

func (f *fakeTransport) Download(_ context.Context, remotePath, localPath string) error {
	if f.downloadFn == nil {
		return errors.New("download not configured")
	}
	return f.downloadFn(remotePath, localPath)
}

func (f *fakeTransport) ListDirectory(_ context.Context, remotePath string) ([]string, error) {
	if f.listFn == nil {
		return nil, errors.New("list not configured")
	}
	return f.listFn(remotePath)
}

func (f *fakeTransport) ReadFile(_ context.Context, remotePath string) (string, error) {
	if f.readFn == nil {
		return "", errors.New("read not configured")
	}
	return f.readFn(remotePath)
}

func (f *fakeTransport) WriteFile(_ context.Context, localPath, remotePath string) error {
	if f.writeFn == nil {
		return errors.New("write not configured")
	}
	return f.writeFn(localPath, remotePath)
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func (f *fakeTransport) Count(cmd string) int {
	n := 0
	for _, c := range f.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

func (f *fakeTransport) Reset() {
	f.mu.Lock()
	f.commands = nil
	f.mu.Unlock()
}

type fakeDialer struct {
	mu    sync.Mutex
	calls int
	last  transport.ConnectConfig

	dialFn func(cfg transport.ConnectConfig) (transport.Transport, error)
}

func (d *fakeDialer) Dial(_ context.Context, cfg transport.ConnectConfig) (transport.Transport, error) {
	d.mu.Lock()
	d.calls++
	d.last = cfg
	d.mu.Unlock()
	return d.dialFn(cfg)
}

type recordingSink struct {
	mu          sync.Mutex
	system      []schema.SystemOutputEvent
	transcripts []schema.TranscriptEvent
	tasks       []schema.TaskEvent
	sessions    []schema.SessionEvent
}

func (r *recordingSink) OnTranscript(event schema.TranscriptEvent) {
	r.mu.Lock()
	r.transcripts = append(r.transcripts, event)
	r.mu.Unlock()
}

func (r *recordingSink) OnSystemOutput(event schema.SystemOutputEvent) {
	r.mu.Lock()
	r.system = append(r.system, event)
	r.mu.Unlock()
}

func (r *recordingSink) OnTask(event schema.TaskEvent) {
	r.mu.Lock()
	r.tasks = append(r.tasks, event)
	r.mu.Unlock()
}

func (r *recordingSink) OnSession(event schema.SessionEvent) {
	r.mu.Lock()
	r.sessions = append(r.sessions, event)
	r.mu.Unlock()
}

func (r *recordingSink) Tasks() []schema.TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.TaskEvent(nil), r.tasks...)
}

func (r *recordingSink) Sessions() []schema.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.SessionEvent(nil), r.sessions...)
}
