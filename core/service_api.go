package core

import (
	"context"

	"pkt.systems/sshdesk/schema"
)

// Service is the presentation-agnostic API for one remote session.
// Remote operations return a Future immediately; they fail up front with
// schema.ErrNotConnected when no session is open.
type Service interface {
	Connect(ctx context.Context, req schema.ConnectRequest) (schema.ConnectResponse, error)
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) schema.SessionStatus
	Prompt(ctx context.Context) string
	Shell(ctx context.Context, req schema.ShellRequest) (*Future, error)
	SaveContent(ctx context.Context, req schema.SaveContentRequest) (*Future, error)
	Upload(ctx context.Context, req schema.UploadRequest) (*Future, error)
	Download(ctx context.Context, req schema.DownloadRequest) (*Future, error)
	ListFiles(ctx context.Context, req schema.ListFilesRequest) (*Future, error)
	ReadFile(ctx context.Context, req schema.ReadFileRequest) (*Future, error)
	AppendSystemOutput(ctx context.Context, req schema.AppendSystemOutputRequest) error
	Transcript(limit int) []string
	Close() error
}
