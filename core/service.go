package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alessio/shellescape"
	"pkt.systems/pslog"
	"pkt.systems/sshdesk/internal/logx"
	"pkt.systems/sshdesk/internal/transport"
	"pkt.systems/sshdesk/schema"
)

// service implements the core service behavior.
type service struct {
	cfg    schema.ServiceConfig
	dialer transport.Dialer
	sink   EventSink
	logger pslog.Logger
	runner *Runner

	mu         sync.Mutex
	sess       *session
	transcript *transcript
}

// session is the state of one connected host.
type session struct {
	entry      schema.HostEntry
	transport  transport.Transport
	tracker    *Tracker
	dispatcher *Dispatcher
	log        pslog.Logger
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if err := os.MkdirAll(cfg.TempDir, 0o700); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	if deps.Dialer == nil {
		deps.Dialer = transport.NewSSHDialerWithLogger(logger)
	}
	s := &service{
		cfg:        cfg,
		dialer:     deps.Dialer,
		sink:       deps.EventSink,
		logger:     logger,
		transcript: newTranscript(cfg.TranscriptMaxLines),
	}
	s.runner = NewRunner(RunnerOptions{
		Mode:          cfg.TaskMode,
		MaxConcurrent: cfg.MaxConcurrentTasks,
		OnComplete:    s.emitTask,
		Logger:        logger,
	})
	return s, nil
}

func (s *service) Connect(ctx context.Context, req schema.ConnectRequest) (schema.ConnectResponse, error) {
	if ctx == nil {
		return schema.ConnectResponse{}, errors.New("missing context")
	}
	entry := req.Entry
	entry.Host = strings.TrimSpace(entry.Host)
	entry.Username = strings.TrimSpace(entry.Username)
	if entry.Host == "" || entry.Username == "" {
		return schema.ConnectResponse{}, fmt.Errorf("%w: host and username are required", schema.ErrInvalidRequest)
	}
	log := logx.WithHost(pslog.ContextWithLogger(ctx, s.logger), entry.Host, entry.Username)
	log.Info("service connect start")

	if err := s.Disconnect(ctx); err != nil {
		log.Warn("service previous session close failed", "err", err)
	}

	port := req.Port
	if port == 0 {
		port = s.cfg.SSHPort
	}
	tr, err := s.dialer.Dial(ctx, transport.ConnectConfig{
		Host:           entry.Host,
		Port:           port,
		User:           entry.Username,
		Secret:         entry.Secret,
		Timeout:        s.cfg.SSHTimeout,
		KnownHostsPath: s.cfg.KnownHostsPath,
		HostKeyPolicy:  transport.HostKeyPolicy(s.cfg.HostKeyPolicy),
		MaxReadBytes:   s.cfg.MaxReadBytes,
	})
	if err != nil {
		log.Warn("service connect failed", "err", err)
		s.emitSession(schema.SessionEvent{
			Type:   schema.SessionConnectFailed,
			Host:   entry.Host,
			User:   entry.Username,
			Reason: connectFailureReason(err),
		})
		return schema.ConnectResponse{}, err
	}

	tracker := NewTrackerWithLogger(tr, s.cfg.PromptTTL, log)
	tracker.SetHomeExpansion(s.cfg.ExpandHome)
	sess := &session{
		entry:     entry,
		transport: tr,
		tracker:   tracker,
		dispatcher: NewDispatcher(tracker, DispatcherOptions{
			SurfaceCdFailures: s.cfg.SurfaceCdFailures,
			Logger:            log,
		}),
		log: log,
	}
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
	log.Info("service connect ok")
	s.emitSession(schema.SessionEvent{Type: schema.SessionConnected, Host: entry.Host, User: entry.Username})
	return schema.ConnectResponse{Status: s.Status(ctx)}, nil
}

func (s *service) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()
	if sess == nil {
		return nil
	}
	sess.tracker.Reset()
	err := sess.transport.Close()
	if err != nil {
		sess.log.Warn("service disconnect failed", "err", err)
	} else {
		sess.log.Info("service disconnect ok")
	}
	s.emitSession(schema.SessionEvent{Type: schema.SessionDisconnected, Host: sess.entry.Host, User: sess.entry.Username})
	return err
}

func (s *service) Status(ctx context.Context) schema.SessionStatus {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess == nil {
		return schema.SessionStatus{}
	}
	dir, _ := sess.tracker.Directory()
	return schema.SessionStatus{
		Connected: true,
		Host:      sess.entry.Host,
		User:      sess.entry.Username,
		Directory: dir,
	}
}

func (s *service) Prompt(ctx context.Context) string {
	sess := s.current()
	if sess == nil {
		return FallbackPrompt
	}
	sess.tracker.EnsureDirectoryKnown(ctx)
	return sess.tracker.ComputePrompt(ctx)
}

func (s *service) Shell(ctx context.Context, req schema.ShellRequest) (*Future, error) {
	sess, err := s.require()
	if err != nil {
		return nil, err
	}
	if !s.cfg.DisableAuditLogging {
		sess.log.Debug("audit command", "command_type", "shell", "command", req.Line)
	}
	return s.runner.Submit(ctx, schema.TaskShell, func(ctx context.Context) (schema.TaskResult, error) {
		line, _ := sess.dispatcher.Dispatch(ctx, req.Line)
		if s.current() != sess {
			return schema.TaskResult{}, schema.ErrNotConnected
		}
		s.record(sess, line)
		return schema.TaskResult{OK: !line.Rejected && !line.Failed, Output: line.Output, Transcript: line}, nil
	}), nil
}

func (s *service) SaveContent(ctx context.Context, req schema.SaveContentRequest) (*Future, error) {
	if strings.TrimSpace(req.RemotePath) == "" {
		return nil, fmt.Errorf("%w: remote path is required", schema.ErrInvalidRequest)
	}
	sess, err := s.require()
	if err != nil {
		return nil, err
	}
	return s.runner.Submit(ctx, schema.TaskSaveContent, func(ctx context.Context) (schema.TaskResult, error) {
		remote := s.resolveRemote(ctx, sess, req.RemotePath)
		local := filepath.Join(s.cfg.TempDir, tempName())
		f, err := os.OpenFile(local, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return schema.TaskResult{}, fmt.Errorf("%w: create temp: %v", schema.ErrOperationFailed, err)
		}
		defer os.Remove(local)
		if _, err := f.WriteString(req.Content); err != nil {
			_ = f.Close()
			return schema.TaskResult{}, fmt.Errorf("%w: write temp: %v", schema.ErrOperationFailed, err)
		}
		if err := f.Close(); err != nil {
			return schema.TaskResult{}, fmt.Errorf("%w: close temp: %v", schema.ErrOperationFailed, err)
		}
		if err := sess.transport.WriteFile(ctx, local, remote); err != nil {
			return schema.TaskResult{}, err
		}
		sess.log.Info("service save ok", "remote", remote, "bytes", len(req.Content))
		return schema.TaskResult{OK: true, Output: remote}, nil
	}), nil
}

func (s *service) Upload(ctx context.Context, req schema.UploadRequest) (*Future, error) {
	if strings.TrimSpace(req.LocalPath) == "" {
		return nil, fmt.Errorf("%w: local path is required", schema.ErrInvalidRequest)
	}
	sess, err := s.require()
	if err != nil {
		return nil, err
	}
	return s.runner.Submit(ctx, schema.TaskUpload, func(ctx context.Context) (schema.TaskResult, error) {
		remoteDir := s.resolveRemote(ctx, sess, req.RemoteDir)
		remote, err := sess.transport.Upload(ctx, req.LocalPath, remoteDir)
		if err != nil {
			return schema.TaskResult{}, err
		}
		sess.log.Info("service upload ok", "local", req.LocalPath, "remote", remote)
		return schema.TaskResult{OK: true, Output: remote}, nil
	}), nil
}

func (s *service) Download(ctx context.Context, req schema.DownloadRequest) (*Future, error) {
	if strings.TrimSpace(req.RemotePath) == "" {
		return nil, fmt.Errorf("%w: remote path is required", schema.ErrInvalidRequest)
	}
	sess, err := s.require()
	if err != nil {
		return nil, err
	}
	return s.runner.Submit(ctx, schema.TaskDownload, func(ctx context.Context) (schema.TaskResult, error) {
		remote := s.resolveRemote(ctx, sess, req.RemotePath)
		local := req.LocalPath
		if strings.TrimSpace(local) == "" {
			local = path.Base(remote)
		}
		if err := sess.transport.Download(ctx, remote, local); err != nil {
			return schema.TaskResult{}, err
		}
		sess.log.Info("service download ok", "remote", remote, "local", local)
		return schema.TaskResult{OK: true, Output: local}, nil
	}), nil
}

func (s *service) ListFiles(ctx context.Context, req schema.ListFilesRequest) (*Future, error) {
	sess, err := s.require()
	if err != nil {
		return nil, err
	}
	return s.runner.Submit(ctx, schema.TaskListFiles, func(ctx context.Context) (schema.TaskResult, error) {
		remote := s.resolveRemote(ctx, sess, req.RemotePath)
		if remote == "" {
			return schema.TaskResult{}, fmt.Errorf("%w: remote directory unknown", schema.ErrStateInconsistency)
		}
		entries, err := sess.transport.ListDirectory(ctx, remote)
		if err != nil {
			return schema.TaskResult{}, err
		}
		return schema.TaskResult{OK: true, Output: remote, Entries: entries}, nil
	}), nil
}

func (s *service) ReadFile(ctx context.Context, req schema.ReadFileRequest) (*Future, error) {
	if strings.TrimSpace(req.RemotePath) == "" {
		return nil, fmt.Errorf("%w: remote path is required", schema.ErrInvalidRequest)
	}
	sess, err := s.require()
	if err != nil {
		return nil, err
	}
	return s.runner.Submit(ctx, schema.TaskReadFile, func(ctx context.Context) (schema.TaskResult, error) {
		remote := s.resolveRemote(ctx, sess, req.RemotePath)
		content, err := sess.transport.ReadFile(ctx, remote)
		if err == nil {
			return schema.TaskResult{OK: true, Output: content}, nil
		}
		if errors.Is(err, schema.ErrNotConnected) || errors.Is(err, schema.ErrReadRefused) {
			return schema.TaskResult{}, err
		}
		limit := s.cfg.MaxReadBytes
		sess.log.Debug("service read falling back to exec", "remote", remote, "err", err)
		out, ok := sess.tracker.RunInDirectory(ctx, readCommand(remote, limit))
		if !ok || out == "" {
			return schema.TaskResult{}, err
		}
		if int64(len(out)) > limit {
			return schema.TaskResult{}, fmt.Errorf("%w: %w: %q exceeds %d bytes", schema.ErrOperationFailed, schema.ErrReadRefused, remote, limit)
		}
		return schema.TaskResult{OK: true, Output: out}, nil
	}), nil
}

func (s *service) AppendSystemOutput(ctx context.Context, req schema.AppendSystemOutputRequest) error {
	if len(req.Lines) == 0 {
		return nil
	}
	lines := append([]string(nil), req.Lines...)
	s.mu.Lock()
	s.transcript.Append(lines...)
	sess := s.sess
	s.mu.Unlock()
	host := ""
	if sess != nil {
		host = sess.entry.Host
	}
	if s.sink != nil {
		s.sink.OnSystemOutput(schema.SystemOutputEvent{Host: host, Lines: lines})
	}
	return nil
}

func (s *service) Transcript(limit int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Snapshot(limit)
}

func (s *service) Close() error {
	err := s.Disconnect(context.Background())
	s.runner.Close()
	return err
}

func (s *service) current() *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *service) require() (*session, error) {
	sess := s.current()
	if sess == nil {
		return nil, schema.ErrNotConnected
	}
	return sess, nil
}

// resolveRemote resolves p against the tracked directory. Empty means the
// tracked directory itself.
func (s *service) resolveRemote(ctx context.Context, sess *session, p string) string {
	p = strings.TrimSpace(p)
	if path.IsAbs(p) {
		return path.Clean(p)
	}
	sess.tracker.EnsureDirectoryKnown(ctx)
	dir, ok := sess.tracker.Directory()
	if !ok {
		return p
	}
	if p == "" {
		return dir
	}
	return path.Join(dir, p)
}

func (s *service) record(sess *session, line schema.TranscriptLine) {
	s.mu.Lock()
	s.transcript.Apply(line)
	s.mu.Unlock()
	if s.sink != nil {
		s.sink.OnTranscript(schema.TranscriptEvent{Host: sess.entry.Host, Line: line})
	}
}

func (s *service) emitTask(res schema.TaskResult) {
	if s.sink == nil {
		return
	}
	host := ""
	if sess := s.current(); sess != nil {
		host = sess.entry.Host
	}
	s.sink.OnTask(schema.TaskEvent{Host: host, Result: res})
}

func (s *service) emitSession(event schema.SessionEvent) {
	if s.sink != nil {
		s.sink.OnSession(event)
	}
}

// readCommand prints at most limit+1 bytes of remote so an oversized file is
// detected without transferring all of it.
func readCommand(remote string, limit int64) string {
	return fmt.Sprintf("head -c %d %s", limit+1, shellescape.Quote(remote))
}

func connectFailureReason(err error) string {
	switch {
	case errors.Is(err, schema.ErrAuthFailure):
		return "authentication failed, check the username and password"
	case errors.Is(err, schema.ErrProtocolFailure):
		return "ssh protocol error: " + err.Error()
	default:
		return "connection error: " + err.Error()
	}
}
