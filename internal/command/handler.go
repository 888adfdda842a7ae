package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"pkt.systems/sshdesk/core"
	"pkt.systems/sshdesk/internal/logx"
	"pkt.systems/sshdesk/internal/version"
	"pkt.systems/sshdesk/schema"
)

// ErrQuit is returned by Handle when the operator asks to leave the console.
var ErrQuit = errors.New("quit requested")

// HostStore saves connection triples.
type HostStore interface {
	Add(entry schema.HostEntry) error
}

// EditFunc opens path in an interactive editor and returns when it exits.
type EditFunc func(ctx context.Context, path string) error

// HandlerConfig configures slash command behavior.
type HandlerConfig struct {
	// Hosts backs /save. Nil disables it.
	Hosts HostStore
	// Entry is the triple used for the current connection.
	Entry schema.HostEntry
	// Editor is the local editor command for /edit, defaulting to $EDITOR then vi.
	Editor string
	// EditFunc overrides how the editor is launched.
	EditFunc            EditFunc
	TempDir             string
	DisableAuditLogging bool
}

// Handler routes slash commands to service operations.
type Handler struct {
	service core.Service
	cfg     HandlerConfig
}

// NewHandler constructs a command handler.
func NewHandler(service core.Service, cfg HandlerConfig) *Handler {
	if strings.TrimSpace(cfg.Editor) == "" {
		cfg.Editor = os.Getenv("EDITOR")
	}
	if strings.TrimSpace(cfg.Editor) == "" {
		cfg.Editor = "vi"
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	h := &Handler{service: service, cfg: cfg}
	if h.cfg.EditFunc == nil {
		h.cfg.EditFunc = h.runEditor
	}
	return h
}

// Handle inspects input and executes slash commands. It reports false when
// input is not a registered slash command and should be sent to the remote
// shell.
// Failures are echoed to system output before being returned.
func (h *Handler) Handle(ctx context.Context, input string) (bool, error) {
	if ctx == nil {
		return false, errors.New("missing context")
	}
	cmd, ok := Parse(input)
	if !ok {
		return false, nil
	}
	status := h.service.Status(ctx)
	log := logx.WithHost(ctx, status.Host, status.User)
	ctx = logx.ContextWithHostLogger(ctx, log, status.Host)
	if !h.cfg.DisableAuditLogging {
		log.Debug("audit command", "command_type", "slash", "command", strings.TrimSpace(input))
	}
	log = log.With("command", cmd.Name, "args", len(cmd.Args))
	log.Info("command slash request")
	err := h.dispatch(ctx, cmd)
	if err != nil && !errors.Is(err, ErrQuit) {
		log.Warn("command slash failed", "err", err)
		h.appendError(ctx, err)
	}
	return true, err
}

func (h *Handler) dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Name {
	case "put":
		return h.handlePut(ctx, cmd)
	case "get":
		return h.handleGet(ctx, cmd)
	case "ls":
		return h.handleList(ctx, cmd)
	case "cat":
		return h.handleCat(ctx, cmd)
	case "edit":
		return h.handleEdit(ctx, cmd)
	case "pwd":
		return h.handlePwd(ctx)
	case "status":
		return h.handleStatus(ctx)
	case "save":
		return h.handleSave(ctx)
	case "disconnect":
		return h.handleDisconnect(ctx)
	case "help":
		return h.handleHelp(ctx)
	case "version":
		return h.handleVersion(ctx)
	case "quit", "exit":
		logx.Ctx(ctx).Info("command quit requested")
		return ErrQuit
	default:
		return fmt.Errorf("unknown command: /%s", cmd.Name)
	}
}

func (h *Handler) handlePut(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 1 || len(cmd.Args) > 2 {
		return fmt.Errorf("usage: /put <local-file> [remote-dir]")
	}
	req := schema.UploadRequest{LocalPath: cmd.Args[0]}
	if len(cmd.Args) == 2 {
		req.RemoteDir = cmd.Args[1]
	}
	res, err := h.wait(ctx, func() (*core.Future, error) { return h.service.Upload(ctx, req) })
	if err != nil {
		return err
	}
	h.appendStatus(ctx, fmt.Sprintf("uploaded %s to %s", req.LocalPath, res.Output))
	return nil
}

func (h *Handler) handleGet(ctx context.Context, cmd Command) error {
	if len(cmd.Args) < 1 || len(cmd.Args) > 2 {
		return fmt.Errorf("usage: /get <remote-file> [local-path]")
	}
	req := schema.DownloadRequest{RemotePath: cmd.Args[0]}
	if len(cmd.Args) == 2 {
		req.LocalPath = cmd.Args[1]
	}
	res, err := h.wait(ctx, func() (*core.Future, error) { return h.service.Download(ctx, req) })
	if err != nil {
		return err
	}
	h.appendStatus(ctx, fmt.Sprintf("downloaded %s to %s", req.RemotePath, res.Output))
	return nil
}

func (h *Handler) handleList(ctx context.Context, cmd Command) error {
	req := schema.ListFilesRequest{RemotePath: cmd.Remainder}
	res, err := h.wait(ctx, func() (*core.Future, error) { return h.service.ListFiles(ctx, req) })
	if err != nil {
		return err
	}
	if len(res.Entries) == 0 {
		h.appendStatus(ctx, fmt.Sprintf("%s is empty", res.Output))
		return nil
	}
	_ = h.service.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: res.Entries})
	return nil
}

func (h *Handler) handleCat(ctx context.Context, cmd Command) error {
	if strings.TrimSpace(cmd.Remainder) == "" {
		return fmt.Errorf("usage: /cat <remote-file>")
	}
	content, err := h.readRemote(ctx, cmd.Remainder)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(strings.ReplaceAll(content, "\r\n", "\n"), "\n"), "\n")
	_ = h.service.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: lines})
	return nil
}

func (h *Handler) handleEdit(ctx context.Context, cmd Command) error {
	remote := strings.TrimSpace(cmd.Remainder)
	if remote == "" {
		return fmt.Errorf("usage: /edit <remote-file>")
	}
	log := logx.Ctx(ctx).With("remote", remote)
	original, err := h.readRemote(ctx, remote)
	if err != nil {
		if errors.Is(err, schema.ErrNotConnected) {
			return err
		}
		log.Info("command edit new file", "err", err)
		h.appendStatus(ctx, fmt.Sprintf("%s not readable, editing a new file", remote))
		original = ""
	}
	if err := os.MkdirAll(h.cfg.TempDir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(h.cfg.TempDir, "sshdesk-edit-*-"+sanitizeBase(remote))
	if err != nil {
		return err
	}
	local := tmp.Name()
	defer func() { _ = os.Remove(local) }()
	if _, err := tmp.WriteString(original); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := h.cfg.EditFunc(ctx, local); err != nil {
		log.Warn("command edit editor failed", "err", err)
		return err
	}
	edited, err := os.ReadFile(local)
	if err != nil {
		return err
	}
	if string(edited) == original {
		h.appendStatus(ctx, fmt.Sprintf("%s unchanged", remote))
		return nil
	}
	req := schema.SaveContentRequest{RemotePath: remote, Content: string(edited)}
	res, err := h.wait(ctx, func() (*core.Future, error) { return h.service.SaveContent(ctx, req) })
	if err != nil {
		log.Warn("command edit save failed", "err", err)
		return err
	}
	log.Info("command edit saved", "bytes", len(edited))
	h.appendStatus(ctx, fmt.Sprintf("saved %s", res.Output))
	return nil
}

func (h *Handler) handlePwd(ctx context.Context) error {
	status := h.service.Status(ctx)
	if !status.Connected {
		return schema.ErrNotConnected
	}
	dir := status.Directory
	if dir == "" {
		dir = "unknown"
	}
	_ = h.service.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: []string{dir}})
	return nil
}

func (h *Handler) handleStatus(ctx context.Context) error {
	status := h.service.Status(ctx)
	connected := "no"
	if status.Connected {
		connected = "yes"
	}
	labels := []string{"Connected", "Host", "User", "Directory"}
	width := maxLabelWidth(labels)
	lines := []string{
		formatStatusLine("Connected", connected, width),
		formatStatusLine("Host", status.Host, width),
		formatStatusLine("User", status.User, width),
		formatStatusLine("Directory", status.Directory, width),
	}
	_ = h.service.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: lines})
	return nil
}

func (h *Handler) handleSave(ctx context.Context) error {
	log := logx.Ctx(ctx)
	if h.cfg.Hosts == nil {
		log.Warn("command save rejected", "reason", "host store not configured")
		return errors.New("saved connections not configured")
	}
	entry := h.cfg.Entry
	if strings.TrimSpace(entry.Host) == "" || strings.TrimSpace(entry.Username) == "" {
		return errors.New("no connection to save")
	}
	if err := h.cfg.Hosts.Add(entry); err != nil {
		if errors.Is(err, schema.ErrDuplicateEntry) {
			h.appendStatus(ctx, fmt.Sprintf("%s@%s is already saved", entry.Username, entry.Host))
			return nil
		}
		log.Warn("command save failed", "err", err)
		return err
	}
	h.appendStatus(ctx, fmt.Sprintf("saved %s@%s", entry.Username, entry.Host))
	return nil
}

func (h *Handler) handleDisconnect(ctx context.Context) error {
	status := h.service.Status(ctx)
	if !status.Connected {
		return schema.ErrNotConnected
	}
	if err := h.service.Disconnect(ctx); err != nil {
		return err
	}
	h.appendStatus(ctx, fmt.Sprintf("disconnected from %s", status.Host))
	return nil
}

func (h *Handler) handleHelp(ctx context.Context) error {
	_ = h.service.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: helpLines()})
	return nil
}

func (h *Handler) handleVersion(ctx context.Context) error {
	line := fmt.Sprintf("%s %s", version.Module(), version.Current())
	_ = h.service.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: []string{line}})
	return nil
}

func (h *Handler) readRemote(ctx context.Context, remote string) (string, error) {
	req := schema.ReadFileRequest{RemotePath: remote}
	res, err := h.wait(ctx, func() (*core.Future, error) { return h.service.ReadFile(ctx, req) })
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// wait submits a task and blocks on its result.
func (h *Handler) wait(ctx context.Context, submit func() (*core.Future, error)) (schema.TaskResult, error) {
	future, err := submit()
	if err != nil {
		return schema.TaskResult{}, err
	}
	res, err := future.Wait(ctx)
	if err != nil {
		return schema.TaskResult{}, err
	}
	if res.Err != nil {
		return res, res.Err
	}
	return res, nil
}

func (h *Handler) runEditor(ctx context.Context, file string) error {
	fields := strings.Fields(h.cfg.Editor)
	if len(fields) == 0 {
		return errors.New("no editor configured")
	}
	args := append(fields[1:], file)
	cmd := exec.CommandContext(ctx, fields[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("editor %s: %w", fields[0], err)
	}
	return nil
}

func (h *Handler) appendStatus(ctx context.Context, message string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	h.appendLine(ctx, "status: "+message)
}

func (h *Handler) appendError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	h.appendLine(ctx, fmt.Sprintf("error: %v", err))
}

func (h *Handler) appendLine(ctx context.Context, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	_ = h.service.AppendSystemOutput(ctx, schema.AppendSystemOutputRequest{Lines: []string{line}})
}

func sanitizeBase(remote string) string {
	base := path.Base(remote)
	base = filepath.Base(base)
	if base == "." || base == "/" || base == "" {
		return "file"
	}
	return strings.ReplaceAll(base, "*", "_")
}

func maxLabelWidth(labels []string) int {
	max := 0
	for _, label := range labels {
		if label == "" {
			continue
		}
		width := len(label) + 1
		if width > max {
			max = width
		}
	}
	return max
}

func formatStatusLine(label, value string, labelWidth int) string {
	if labelWidth <= 0 {
		labelWidth = len(label) + 1
	}
	if strings.TrimSpace(value) == "" {
		value = "unknown"
	}
	return fmt.Sprintf("%-*s %s", labelWidth, label+":", value)
}
