package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrAuthFailure indicates the host rejected the credentials.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrProtocolFailure indicates a transport-level error during the SSH handshake or session.
	ErrProtocolFailure = errors.New("ssh protocol error")
	// ErrConnectFailure indicates any other connect failure (dial, dns, timeout).
	ErrConnectFailure = errors.New("connection failed")
	// ErrNotConnected indicates an operation was requested without a session.
	ErrNotConnected = errors.New("not connected")
	// ErrOperationFailed indicates a specific exec/transfer/list/read/write call failed.
	ErrOperationFailed = errors.New("operation failed")
	// ErrReadRefused indicates a remote file was not read because it is a
	// directory or larger than the read limit.
	ErrReadRefused = errors.New("read refused")
	// ErrStateInconsistency indicates a directory probe or cd confirmation did not match.
	ErrStateInconsistency = errors.New("remote state mismatch")
	// ErrDuplicateEntry indicates a saved connection already exists.
	ErrDuplicateEntry = errors.New("connection entry already exists")
	// ErrEntryNotFound indicates a saved connection does not exist.
	ErrEntryNotFound = errors.New("connection entry not found")
	// ErrRunnerClosed indicates the task runner no longer accepts tasks.
	ErrRunnerClosed = errors.New("task runner closed")
	// ErrTaskPanicked indicates a task function panicked.
	ErrTaskPanicked = errors.New("task panicked")
)
