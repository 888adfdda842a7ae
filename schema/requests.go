package schema

// ConnectRequest opens a session to Entry.Host.
type ConnectRequest struct {
	Entry HostEntry
	// Port overrides the configured SSH port when non-zero.
	Port int
}

// ConnectResponse reports the established session.
type ConnectResponse struct {
	Status SessionStatus
}

// SessionStatus is a snapshot of the session state.
type SessionStatus struct {
	Connected bool
	Host      string
	User      string
	Directory string
}

// ShellRequest dispatches one console line.
type ShellRequest struct {
	Line string
}

// SaveContentRequest writes Content to RemotePath.
type SaveContentRequest struct {
	RemotePath string
	Content    string
}

// UploadRequest copies LocalPath into RemoteDir.
type UploadRequest struct {
	LocalPath string
	RemoteDir string
}

// DownloadRequest copies RemotePath to LocalPath.
type DownloadRequest struct {
	RemotePath string
	LocalPath  string
}

// ListFilesRequest lists RemotePath. Empty means the tracked directory.
type ListFilesRequest struct {
	RemotePath string
}

// ReadFileRequest reads RemotePath.
type ReadFileRequest struct {
	RemotePath string
}

// AppendSystemOutputRequest appends status lines to the transcript.
type AppendSystemOutputRequest struct {
	Lines []string
}
