package archive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/altafino/order-mail-extractor/internal/utility/u_io"
)

// FileStorage writes archive folders below a root directory
type FileStorage struct {
	root   string
	logger *slog.Logger
}

// NewFileStorage creates a new FileStorage instance
func NewFileStorage(root string, logger *slog.Logger) *FileStorage {
	return &FileStorage{root: root, logger: logger}
}

// EnsureFolder creates root/folder recursively
func (fs *FileStorage) EnsureFolder(ctx context.Context, folder string) (string, error) {
	dir := filepath.Join(fs.root, folder)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create storage directory: %w", err)
	}
	return dir, nil
}

// WriteFile writes through a temp file so a failed write never leaves a
// truncated file in place of an earlier good one.
func (fs *FileStorage) WriteFile(ctx context.Context, folder, name string, content []byte) (string, error) {
	path := filepath.Join(fs.root, folder, name)
	if err := u_io.WriteFileAtomic(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	fs.logger.Debug("file written", "path", path, "size", len(content))
	return path, nil
}
