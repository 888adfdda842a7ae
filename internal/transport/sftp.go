package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/pkg/sftp"
	"pkt.systems/sshdesk/schema"
)

const defaultMaxReadBytes = 2 << 20

func (t *SSHTransport) sftpClient(ctx context.Context) (*sftp.Client, error) {
	if err := t.usable(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sftp != nil {
		return t.sftp, nil
	}
	client, err := sftp.NewClient(t.client)
	if err != nil {
		if t.logger != nil {
			t.logger.Warn("sftp open failed", "err", err)
		}
		return nil, fmt.Errorf("%w: sftp: open subsystem: %v", schema.ErrOperationFailed, err)
	}
	t.sftp = client
	return client, nil
}

// Upload copies localPath to remoteDir/basename(localPath).
func (t *SSHTransport) Upload(ctx context.Context, localPath, remoteDir string) (string, error) {
	remotePath := path.Join(remoteDir, filepath.Base(localPath))
	if err := t.WriteFile(ctx, localPath, remotePath); err != nil {
		return "", err
	}
	return remotePath, nil
}

// WriteFile copies the local file to remotePath, truncating it.
func (t *SSHTransport) WriteFile(ctx context.Context, localPath, remotePath string) error {
	client, err := t.sftpClient(ctx)
	if err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", schema.ErrOperationFailed, localPath, err)
	}
	defer src.Close()
	dst, err := client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("%w: sftp: create %q: %v", schema.ErrOperationFailed, remotePath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("%w: sftp: write %q: %v", schema.ErrOperationFailed, remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: sftp: close %q: %v", schema.ErrOperationFailed, remotePath, err)
	}
	return nil
}

// Download copies remotePath to localPath, creating parent directories.
func (t *SSHTransport) Download(ctx context.Context, remotePath, localPath string) error {
	client, err := t.sftpClient(ctx)
	if err != nil {
		return err
	}
	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("%w: sftp: open %q: %v", schema.ErrOperationFailed, remotePath, err)
	}
	defer src.Close()
	if dir := filepath.Dir(localPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: create %q: %v", schema.ErrOperationFailed, dir, err)
		}
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("%w: create %q: %v", schema.ErrOperationFailed, localPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("%w: sftp: read %q: %v", schema.ErrOperationFailed, remotePath, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: close %q: %v", schema.ErrOperationFailed, localPath, err)
	}
	return nil
}

// ListDirectory returns the sorted entry names of remotePath.
func (t *SSHTransport) ListDirectory(ctx context.Context, remotePath string) ([]string, error) {
	client, err := t.sftpClient(ctx)
	if err != nil {
		return nil, err
	}
	infos, err := client.ReadDirContext(ctx, remotePath)
	if err != nil {
		return nil, fmt.Errorf("%w: sftp: readdir %q: %v", schema.ErrOperationFailed, remotePath, err)
	}
	names := make([]string, 0, len(infos))
	for _, fi := range infos {
		names = append(names, fi.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ReadFile returns the content of remotePath, refusing files larger than the
// configured read limit.
func (t *SSHTransport) ReadFile(ctx context.Context, remotePath string) (string, error) {
	client, err := t.sftpClient(ctx)
	if err != nil {
		return "", err
	}
	limit := t.maxRead
	if limit <= 0 {
		limit = defaultMaxReadBytes
	}
	f, err := client.Open(remotePath)
	if err != nil {
		return "", fmt.Errorf("%w: sftp: open %q: %v", schema.ErrOperationFailed, remotePath, err)
	}
	defer f.Close()
	if info, err := f.Stat(); err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("%w: %w: %q is a directory", schema.ErrOperationFailed, schema.ErrReadRefused, remotePath)
		}
		if info.Size() > limit {
			return "", fmt.Errorf("%w: %w: %q exceeds %d bytes", schema.ErrOperationFailed, schema.ErrReadRefused, remotePath, limit)
		}
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return "", fmt.Errorf("%w: sftp: read %q: %v", schema.ErrOperationFailed, remotePath, err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("%w: %w: %q exceeds %d bytes", schema.ErrOperationFailed, schema.ErrReadRefused, remotePath, limit)
	}
	return string(data), nil
}
