package command

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/sshdesk/schema"
)

func TestHandleSlashAuditLog(t *testing.T) {
	for _, disabled := range []bool{false, true} {
		capture := newLogCapture(t)
		logger := pslog.NewWithOptions(capture, pslog.Options{
			Mode:          pslog.ModeStructured,
			NoColor:       true,
			VerboseFields: true,
			MinLevel:      pslog.DebugLevel,
		})
		ctx := pslog.ContextWithLogger(context.Background(), logger)

		svc := newFakeService(t)
		svc.status = schema.SessionStatus{Connected: true, Host: "db1", User: "ops", Directory: "/var/log"}
		handler := NewHandler(svc, HandlerConfig{DisableAuditLogging: disabled})
		handled, err := handler.Handle(ctx, "/pwd")
		if err != nil || !handled {
			t.Fatalf("Handle: handled=%v err=%v", handled, err)
		}

		found := hasAuditCommand(capture.Entries(), "slash", "/pwd", "db1")
		if found == disabled {
			t.Fatalf("audit disabled=%v but audit entry found=%v", disabled, found)
		}
	}
}

type logEntry struct {
	Level   string
	Message string
	Fields  map[string]any
	Raw     string
}

type logCapture struct {
	t     *testing.T
	mu    sync.Mutex
	buf   bytes.Buffer
	lines []string
}

func newLogCapture(t *testing.T) *logCapture {
	t.Helper()
	return &logCapture{t: t}
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.buf.Write(p)
	for {
		data := c.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		c.lines = append(c.lines, string(data[:idx]))
		c.buf.Next(idx + 1)
	}
	return len(p), nil
}

func (c *logCapture) Entries() []logEntry {
	c.mu.Lock()
	lines := append([]string(nil), c.lines...)
	if c.buf.Len() > 0 {
		lines = append(lines, c.buf.String())
	}
	c.mu.Unlock()
	entries := make([]logEntry, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, parseLogEntry(line))
	}
	return entries
}

func parseLogEntry(line string) logEntry {
	payload := map[string]any{}
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return logEntry{Raw: line}
	}
	level, _ := payload["level"].(string)
	if level == "" {
		level, _ = payload["lvl"].(string)
	}
	message, _ := payload["message"].(string)
	if message == "" {
		message, _ = payload["msg"].(string)
	}
	return logEntry{Level: level, Message: message, Fields: payload, Raw: line}
}

func hasAuditCommand(entries []logEntry, commandType, command, host string) bool {
	for _, entry := range entries {
		if entry.Level != "debug" || entry.Message != "audit command" || entry.Fields == nil {
			continue
		}
		if entry.Fields["command_type"] != commandType || entry.Fields["command"] != command {
			continue
		}
		if host != "" && entry.Fields["host"] != host {
			continue
		}
		return true
	}
	return false
}
