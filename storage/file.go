package storage

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/certvault/custody-backend/interfaces"
)

// FileBackend stores envelopes on the local file system. Files are named
// after the hex SHA-256 of their contents, one file per envelope.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string
}

// NewFileBackend creates a file storage backend rooted at baseDir, creating
// the directory if it does not exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// Put writes envelope bytes to a file named by the SHA-256 of the data and
// returns that hash as the content id.
func (b *FileBackend) Put(ctx context.Context, data []byte) (interfaces.ContentID, error) {
	hash := sha256.Sum256(data)
	id := interfaces.ContentID(fmt.Sprintf("%x", hash))

	filePath, err := b.filePath(id)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("%w: failed to write file: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored envelope in file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return id, nil
}

// Get reads envelope bytes back by content id. Returns ErrContentNotFound
// if no file exists for the id.
func (b *FileBackend) Get(ctx context.Context, id interfaces.ContentID) ([]byte, error) {
	filePath, err := b.filePath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, interfaces.ErrContentNotFound
		}
		return nil, fmt.Errorf("%w: failed to read file: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Fetched envelope from file",
		slog.String("path", filePath),
		slog.Int("size", len(data)))

	return data, nil
}

// Available checks if the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

// filePath maps a content id to a path under the base directory. Ids with
// path separators or traversal elements are rejected, file ids are always
// hex digests.
func (b *FileBackend) filePath(id interfaces.ContentID) (string, error) {
	name := id.String()
	if name == "" || strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return "", interfaces.ErrContentNotFound
	}
	return filepath.Join(b.baseDir, name), nil
}
