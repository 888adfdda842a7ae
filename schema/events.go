package schema

// TranscriptEvent carries one echoed command, or a clear signal.
type TranscriptEvent struct {
	Host string
	Line TranscriptLine
}

// SystemOutputEvent carries console status lines that are not remote output.
type SystemOutputEvent struct {
	Host  string
	Lines []string
}

// TaskEvent carries the completion of a task.
type TaskEvent struct {
	Host   string
	Result TaskResult
}

// SessionEventType identifies session lifecycle changes.
type SessionEventType string

const (
	// SessionConnected is emitted after a successful connect.
	SessionConnected SessionEventType = "connected"
	// SessionConnectFailed is emitted once per failed connect.
	SessionConnectFailed SessionEventType = "connect_failed"
	// SessionDisconnected is emitted after the transport is closed.
	SessionDisconnected SessionEventType = "disconnected"
)

// SessionEvent describes a session lifecycle change.
type SessionEvent struct {
	Type   SessionEventType
	Host   string
	User   string
	Reason string
}
