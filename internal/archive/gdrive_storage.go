package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// GDriveStorage mirrors archive folders into a Google Drive folder using a
// service-account credentials file.
type GDriveStorage struct {
	logger   *slog.Logger
	service  *drive.Service
	parentID string // Google Drive folder ID where archive folders are created

	mu      sync.Mutex
	folders map[string]string // folder name -> drive id
}

// NewGDriveStorage creates a new Google Drive storage instance
func NewGDriveStorage(ctx context.Context, logger *slog.Logger, credentialsFile, parentFolderID string) (*GDriveStorage, error) {
	service, err := drive.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive client: %w", err)
	}

	if parentFolderID == "" {
		parentFolderID = "root"
	}

	return &GDriveStorage{
		logger:   logger,
		service:  service,
		parentID: parentFolderID,
		folders:  make(map[string]string),
	}, nil
}

// EnsureFolder finds or creates folder below the parent folder
func (gd *GDriveStorage) EnsureFolder(ctx context.Context, folder string) (string, error) {
	gd.mu.Lock()
	defer gd.mu.Unlock()

	if id, ok := gd.folders[folder]; ok {
		return id, nil
	}

	id, err := gd.ensureFolderStructure(ctx, folder)
	if err != nil {
		return "", fmt.Errorf("failed to ensure folder structure: %w", err)
	}

	gd.folders[folder] = id
	return id, nil
}

// WriteFile uploads content, updating the existing file of the same name
func (gd *GDriveStorage) WriteFile(ctx context.Context, folder, name string, content []byte) (string, error) {
	folderID, err := gd.EnsureFolder(ctx, folder)
	if err != nil {
		return "", err
	}

	existing, err := gd.findFile(ctx, name, folderID, false)
	if err != nil {
		return "", err
	}

	if existing != "" {
		updated, err := gd.service.Files.Update(existing, &drive.File{}).
			Media(bytes.NewReader(content)).
			Context(ctx).
			Do()
		if err != nil {
			return "", fmt.Errorf("failed to update file: %w", err)
		}
		gd.logger.Debug("file updated", "filename", name, "id", updated.Id, "size", len(content))
		return updated.Id, nil
	}

	file := &drive.File{
		Name:     name,
		Parents:  []string{folderID},
		MimeType: mimeType(name),
	}

	uploaded, err := gd.service.Files.Create(file).
		Media(bytes.NewReader(content)).
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	gd.logger.Debug("file uploaded successfully",
		"filename", name,
		"id", uploaded.Id,
		"size", len(content))

	return uploaded.Id, nil
}

func (gd *GDriveStorage) ensureFolderStructure(ctx context.Context, path string) (string, error) {
	if path == "" {
		return gd.parentID, nil
	}

	parts := strings.Split(filepath.Clean(path), string(filepath.Separator))
	currentParentID := gd.parentID

	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}

		id, err := gd.findFile(ctx, part, currentParentID, true)
		if err != nil {
			return "", err
		}
		if id != "" {
			currentParentID = id
			continue
		}

		folder := &drive.File{
			Name:     part,
			MimeType: folderMimeType,
			Parents:  []string{currentParentID},
		}

		created, err := gd.service.Files.Create(folder).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to create folder: %w", err)
		}

		currentParentID = created.Id
	}

	return currentParentID, nil
}

func (gd *GDriveStorage) findFile(ctx context.Context, name, parentID string, folder bool) (string, error) {
	mimeClause := "mimeType != '" + folderMimeType + "'"
	if folder {
		mimeClause = "mimeType = '" + folderMimeType + "'"
	}

	query := fmt.Sprintf("name = '%s' and '%s' in parents and %s and trashed = false",
		escapeQuery(name), parentID, mimeClause)

	list, err := gd.service.Files.List().Q(query).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to search drive: %w", err)
	}

	if len(list.Files) == 0 {
		return "", nil
	}
	return list.Files[0].Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

func mimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	for mime, e := range MimeToExt {
		if e == ext {
			return mime
		}
	}
	if ext == ".json" {
		return "application/json"
	}
	return "application/octet-stream"
}
