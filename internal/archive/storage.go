package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/altafino/order-mail-extractor/internal/types"
)

// Storage is the backend an archive folder is written to
type Storage interface {
	// EnsureFolder creates folder if absent and returns its location
	EnsureFolder(ctx context.Context, folder string) (string, error)
	// WriteFile stores content as name inside folder, replacing an existing
	// file of the same name, and returns the stored file's location
	WriteFile(ctx context.Context, folder, name string, content []byte) (string, error)
}

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeFile   StorageType = "file"
	StorageTypeGDrive StorageType = "gdrive"
)

// NewStorage creates the backend selected by settings
func NewStorage(ctx context.Context, settings *types.Settings, logger *slog.Logger) (Storage, error) {
	switch StorageType(settings.Storage.Type) {
	case StorageTypeFile, "":
		return NewFileStorage(settings.Storage.Path, logger), nil
	case StorageTypeGDrive:
		return NewGDriveStorage(ctx, logger, settings.Storage.CredentialsFile, settings.Storage.ParentFolderID)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", settings.Storage.Type)
	}
}

func storageKey(settings *types.Settings) string {
	s := settings.Storage
	return s.Type + "|" + s.Path + "|" + s.CredentialsFile + "|" + s.ParentFolderID
}
