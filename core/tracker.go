package core

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"pkt.systems/pslog"
)

// FallbackPrompt is shown when user, host or directory is unknown.
const FallbackPrompt = "$ "

// Executor runs one command on the remote host and returns its stdout.
type Executor interface {
	Exec(ctx context.Context, cmd string) ([]byte, error)
}

// Tracker emulates a persistent working directory and prompt on top of a
// stateless exec channel. The directory is only ever a value echoed by the host.
type Tracker struct {
	exec      Executor
	promptTTL time.Duration
	logger    pslog.Logger
	now       func() time.Time

	// expandHome resolves `~` against the remote home directory.
	expandHome bool

	// opMu serializes probes and directory changes.
	opMu sync.Mutex

	mu       sync.Mutex
	dir      string
	known    bool
	user     string
	host     string
	probedAt time.Time
}

// NewTracker returns a tracker that probes identity on every prompt when
// promptTTL is zero.
func NewTracker(exec Executor, promptTTL time.Duration) *Tracker {
	return NewTrackerWithLogger(exec, promptTTL, nil)
}

// NewTrackerWithLogger returns a tracker that logs directory changes.
func NewTrackerWithLogger(exec Executor, promptTTL time.Duration, logger pslog.Logger) *Tracker {
	if promptTTL < 0 {
		promptTTL = 0
	}
	return &Tracker{
		exec:      exec,
		promptTTL: promptTTL,
		logger:    logger,
		now:       time.Now,
	}
}

// SetHomeExpansion enables `~` handling in ResolveChangeDirectory. Call it
// before the tracker is shared.
func (t *Tracker) SetHomeExpansion(enabled bool) {
	t.expandHome = enabled
}

// Directory returns the tracked directory and whether it is known.
func (t *Tracker) Directory() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir, t.known
}

// Reset forgets the directory and cached identity.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dir = ""
	t.known = false
	t.user = ""
	t.host = ""
	t.probedAt = time.Time{}
}

// EnsureDirectoryKnown probes `pwd` once and adopts its output.
func (t *Tracker) EnsureDirectoryKnown(ctx context.Context) bool {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	if _, ok := t.Directory(); ok {
		return true
	}
	out := t.run(ctx, "pwd")
	if !isAbsolute(out) {
		if t.logger != nil {
			t.logger.Warn("tracker directory probe failed", "output", out)
		}
		return false
	}
	t.setDirectory(out)
	if t.logger != nil {
		t.logger.Debug("tracker directory probed", "dir", out)
	}
	return true
}

// ComputePrompt renders `[user@host dir]# ` for root and `[user@host dir]$ `
// otherwise, or FallbackPrompt when any piece is missing.
func (t *Tracker) ComputePrompt(ctx context.Context) string {
	user, host := t.identity(ctx)
	dir, ok := t.Directory()
	if user == "" || host == "" || !ok || dir == "" {
		return FallbackPrompt
	}
	return FormatPrompt(user, host, dir)
}

// FormatPrompt renders the prompt for a known identity and directory.
func FormatPrompt(user, host, dir string) string {
	marker := "$"
	if user == "root" {
		marker = "#"
	}
	return fmt.Sprintf("[%s@%s %s]%s ", user, host, dir, marker)
}

// ResolveChangeDirectory runs `cd {target} && pwd` where target is arg
// joined onto the tracked directory, and adopts the echoed path only when it
// equals the target. It returns the target and whether the change was
// confirmed. An empty argument confirms the tracked directory. With home
// expansion enabled, an empty argument, `~` and `~/x` resolve against the
// remote home directory instead.
func (t *Tracker) ResolveChangeDirectory(ctx context.Context, arg string) (string, bool) {
	t.opMu.Lock()
	defer t.opMu.Unlock()
	arg = strings.TrimSpace(arg)

	var target string
	switch {
	case t.expandHome && (arg == "" || arg == "~" || strings.HasPrefix(arg, "~/")):
		home := t.run(ctx, "cd && pwd")
		if !isAbsolute(home) {
			t.rejected(arg, home)
			return arg, false
		}
		target = home
		if rest := strings.TrimPrefix(arg, "~"); strings.HasPrefix(rest, "/") {
			target = path.Join(home, rest)
		}
	case path.IsAbs(arg):
		target = path.Clean(arg)
	default:
		dir, ok := t.Directory()
		if !ok {
			t.rejected(arg, "")
			return arg, false
		}
		target = path.Join(dir, arg)
	}

	out := t.run(ctx, ChangeDirectoryCommand(target))
	if out != target {
		t.rejected(target, out)
		return target, false
	}
	t.setDirectory(out)
	if t.logger != nil {
		t.logger.Info("tracker directory changed", "dir", out)
	}
	return target, true
}

// RunInDirectory runs cmd with the tracked directory as working directory.
// It reports false without touching the host when the directory is unknown
// or the exec fails.
func (t *Tracker) RunInDirectory(ctx context.Context, cmd string) (string, bool) {
	dir, ok := t.Directory()
	if !ok {
		return "", false
	}
	out, err := t.exec.Exec(ctx, InDirectoryCommand(dir, cmd))
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("tracker exec failed", "dir", dir, "err", err)
		}
		return "", false
	}
	return string(out), true
}

// ChangeDirectoryCommand returns the confirmation command for target.
func ChangeDirectoryCommand(target string) string {
	return "cd " + shellescape.Quote(target) + " && pwd"
}

// InDirectoryCommand prefixes cmd with a change to dir.
func InDirectoryCommand(dir, cmd string) string {
	return "cd " + shellescape.Quote(dir) + " && " + cmd
}

func (t *Tracker) identity(ctx context.Context) (string, string) {
	if t.promptTTL > 0 {
		t.mu.Lock()
		user, host, at := t.user, t.host, t.probedAt
		t.mu.Unlock()
		if user != "" && host != "" && t.now().Sub(at) < t.promptTTL {
			return user, host
		}
	}
	user := t.run(ctx, "whoami")
	host := t.run(ctx, "hostname")
	if t.promptTTL > 0 && user != "" && host != "" {
		t.mu.Lock()
		t.user, t.host, t.probedAt = user, host, t.now()
		t.mu.Unlock()
	}
	return user, host
}

func (t *Tracker) run(ctx context.Context, cmd string) string {
	out, err := t.exec.Exec(ctx, cmd)
	if err != nil {
		if t.logger != nil {
			t.logger.Debug("tracker probe failed", "command", cmd, "err", err)
		}
		return ""
	}
	return strings.TrimSpace(string(out))
}

func (t *Tracker) setDirectory(dir string) {
	t.mu.Lock()
	t.dir = dir
	t.known = true
	t.mu.Unlock()
}

func (t *Tracker) rejected(target, output string) {
	if t.logger != nil {
		t.logger.Warn("tracker directory change rejected", "target", target, "output", output)
	}
}

func isAbsolute(out string) bool {
	return out != "" && !strings.ContainsAny(out, "\n\r") && path.IsAbs(out)
}
