package core

import "pkt.systems/sshdesk/schema"

const defaultMaxLines = schema.DefaultTranscriptMaxLines

// transcript stores echoed console lines, keeping the newest maxLines.
type transcript struct {
	lines    []string
	maxLines int
}

func newTranscript(maxLines int) *transcript {
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	return &transcript{maxLines: maxLines}
}

// Apply appends the rendered entry, or wipes the transcript for a clear.
func (t *transcript) Apply(line schema.TranscriptLine) {
	if line.Clear {
		t.Clear()
		return
	}
	t.Append(line.Lines()...)
}

// Append adds lines and trims the oldest beyond the limit.
func (t *transcript) Append(lines ...string) {
	if len(lines) == 0 {
		return
	}
	t.lines = append(t.lines, lines...)
	if len(t.lines) > t.maxLines {
		trim := len(t.lines) - t.maxLines
		t.lines = append([]string(nil), t.lines[trim:]...)
	}
}

// Clear drops every line.
func (t *transcript) Clear() {
	t.lines = nil
}

// Snapshot returns the newest limit lines. A limit <= 0 returns everything.
func (t *transcript) Snapshot(limit int) []string {
	total := len(t.lines)
	if limit <= 0 || limit > total {
		limit = total
	}
	out := make([]string, limit)
	copy(out, t.lines[total-limit:])
	return out
}
