package program

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"

	"log/slog"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Uploader pushes program archives to the processor's file system over the
// SFTP subsystem of an existing SSH connection. The subsystem is opened
// lazily on first use.
type Uploader struct {
	conn   *ssh.Client
	mu     sync.Mutex
	client *sftp.Client
	closed bool
}

// NewUploader creates an uploader over an established SSH connection.
func NewUploader(conn *ssh.Client) *Uploader {
	return &Uploader{conn: conn}
}

func (u *Uploader) ensureConnected() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return fmt.Errorf("uploader is closed")
	}
	if u.client != nil {
		return nil
	}
	if u.conn == nil {
		return fmt.Errorf("ssh connection is nil")
	}

	client, err := sftp.NewClient(u.conn)
	if err != nil {
		return fmt.Errorf("open sftp subsystem: %w", err)
	}
	u.client = client
	return nil
}

// Close shuts down the SFTP subsystem; the SSH connection stays open.
func (u *Uploader) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true

	if u.client != nil {
		err := u.client.Close()
		u.client = nil
		return err
	}
	return nil
}

// Upload copies localPath into remoteDir, creating the directory if
// needed, and returns the remote path and the SHA-256 of the bytes sent.
func (u *Uploader) Upload(localPath, remoteDir string) (remotePath, digest string, err error) {
	if err := u.ensureConnected(); err != nil {
		return "", "", err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	src, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("open %s: %w", localPath, err)
	}
	defer src.Close()

	if err := u.client.MkdirAll(remoteDir); err != nil {
		return "", "", fmt.Errorf("create remote dir %s: %w", remoteDir, err)
	}

	remotePath = path.Join(remoteDir, filepath.Base(localPath))
	dst, err := u.client.Create(remotePath)
	if err != nil {
		return "", "", fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer dst.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return "", "", fmt.Errorf("copy to %s: %w", remotePath, err)
	}

	slog.Info("program uploaded",
		slog.String("local", localPath),
		slog.String("remote", remotePath),
		slog.Int64("bytes", n),
	)
	return remotePath, hex.EncodeToString(h.Sum(nil)), nil
}

// RemoteSize stats an uploaded file, for a cheap post-transfer check.
func (u *Uploader) RemoteSize(remotePath string) (int64, error) {
	if err := u.ensureConnected(); err != nil {
		return 0, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	info, err := u.client.Stat(remotePath)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", remotePath, err)
	}
	return info.Size(), nil
}
