package schema

// TaskID identifies a dispatched task.
type TaskID string

// CommandKind classifies a console input line.
type CommandKind string

const (
	// CommandChangeDirectory is a `cd` request resolved against the tracked directory.
	CommandChangeDirectory CommandKind = "change_directory"
	// CommandClear wipes the transcript without touching the remote host.
	CommandClear CommandKind = "clear"
	// CommandGeneric runs in the tracked directory.
	CommandGeneric CommandKind = "generic"
)

// TaskKind identifies the operation a task performs.
type TaskKind string

const (
	// TaskShell dispatches one console line.
	TaskShell TaskKind = "shell"
	// TaskSaveContent writes text to a remote path through a local temp file.
	TaskSaveContent TaskKind = "save_content"
	// TaskUpload copies a local file into a remote directory.
	TaskUpload TaskKind = "upload"
	// TaskDownload copies a remote file to a local path.
	TaskDownload TaskKind = "download"
	// TaskListFiles lists entry names of a remote directory.
	TaskListFiles TaskKind = "list_files"
	// TaskReadFile reads remote file content.
	TaskReadFile TaskKind = "read_file"
)

// HostEntry is a saved connection triple.
type HostEntry struct {
	Host     string `json:"host"`
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// Equal reports whether both entries carry the same triple.
func (e HostEntry) Equal(other HostEntry) bool {
	return e.Host == other.Host && e.Username == other.Username && e.Secret == other.Secret
}

// CommandRequest is one classified console submission.
type CommandRequest struct {
	Kind     CommandKind
	Raw      string
	Argument string
	// Remote is the command sent to the host, empty for clear.
	Remote string
}

// TranscriptLine is what the presentation layer shows for one dispatched command.
type TranscriptLine struct {
	Prompt  string
	Command string
	Output  string
	// Clear asks the presentation layer to wipe the transcript.
	Clear bool
	// Rejected is set when a `cd` was not confirmed by the host.
	Rejected bool
	// Failed is set when a command could not be run on the host.
	Failed bool
}

// Lines renders the transcript entry the way the console echoes it.
func (t TranscriptLine) Lines() []string {
	if t.Clear {
		return nil
	}
	lines := []string{t.Prompt + t.Command}
	if t.Output != "" {
		lines = append(lines, splitLines(t.Output)...)
	}
	return lines
}

// TaskResult is delivered exactly once per task.
type TaskResult struct {
	ID         TaskID
	Kind       TaskKind
	OK         bool
	Output     string
	Entries    []string
	Transcript TranscriptLine
	Err        error
}
