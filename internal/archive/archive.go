// Package archive writes a processed email, its attachments and the
// extracted data into a per-customer folder.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
)

const (
	htmlFileName = "email.html"
	jsonFileName = "email.json"
)

// ArchiveError is returned when the archive folder itself cannot be created.
// Failures of individual files are logged and never surface as errors.
type ArchiveError struct {
	Folder string
	Err    error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("failed to create archive folder %s: %v", e.Folder, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// Info describes what was written for one email
type Info struct {
	Folder          string   `json:"folder"`
	FolderPath      string   `json:"folderPath"`
	HTMLFile        string   `json:"htmlFile,omitempty"`
	JSONFile        string   `json:"jsonFile,omitempty"`
	AttachmentFiles []string `json:"attachmentFiles"`
	SkippedFiles    []string `json:"skippedFiles,omitempty"`
}

// Archiver writes archive folders to the storage backend named in settings
type Archiver struct {
	logger     *slog.Logger
	newStorage func(context.Context, *types.Settings, *slog.Logger) (Storage, error)

	mu         sync.Mutex
	storage    Storage
	storageKey string
}

// New creates an archiver that picks its backend from settings on each call
func New(logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		logger:     logger,
		newStorage: NewStorage,
	}
}

// NewWithStorage creates an archiver bound to one backend
func NewWithStorage(storage Storage, logger *slog.Logger) *Archiver {
	a := New(logger)
	a.newStorage = func(context.Context, *types.Settings, *slog.Logger) (Storage, error) {
		return storage, nil
	}
	return a
}

// storageFor reuses the backend while the storage settings are unchanged
func (a *Archiver) storageFor(ctx context.Context, settings *types.Settings) (Storage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := storageKey(settings)
	if a.storage != nil && a.storageKey == key {
		return a.storage, nil
	}

	s, err := a.newStorage(ctx, settings, a.logger)
	if err != nil {
		return nil, err
	}

	a.storage = s
	a.storageKey = key
	return s, nil
}

// Archive writes email.html, email.json and the attachments into the
// folder named after the sender, the email date and orderNumber.
func (a *Archiver) Archive(ctx context.Context, email *models.Email, settings *types.Settings, orderNumber string) (Info, error) {
	folder := FolderName(CustomerName(email.From), email.Date, orderNumber)
	info := Info{
		Folder:          folder,
		AttachmentFiles: []string{},
	}

	storage, err := a.storageFor(ctx, settings)
	if err != nil {
		return info, &ArchiveError{Folder: folder, Err: err}
	}

	path, err := storage.EnsureFolder(ctx, folder)
	if err != nil {
		return info, &ArchiveError{Folder: folder, Err: err}
	}
	info.FolderPath = path

	logger := a.logger.With("folder", folder, "uid", email.UID)

	if content, err := renderHTML(email); err != nil {
		logger.Error("failed to render email html", "error", err)
	} else if file, err := storage.WriteFile(ctx, folder, htmlFileName, content); err != nil {
		logger.Error("failed to write email html", "error", err)
	} else {
		info.HTMLFile = file
	}

	if content, err := renderJSON(email); err != nil {
		logger.Error("failed to render email metadata", "error", err)
	} else if file, err := storage.WriteFile(ctx, folder, jsonFileName, content); err != nil {
		logger.Error("failed to write email metadata", "error", err)
	} else {
		info.JSONFile = file
	}

	maxBytes := settings.MaxAttachmentBytes()
	used := make(map[string]bool)

	for i, att := range email.Attachments {
		if !att.HasContent() {
			logger.Warn("skipping attachment without content", "filename", att.Filename)
			info.SkippedFiles = append(info.SkippedFiles, att.Filename)
			continue
		}

		if maxBytes > 0 && int64(len(att.Content)) > maxBytes {
			logger.Warn("skipping attachment exceeding size limit",
				"filename", att.Filename,
				"size", len(att.Content),
				"max_size", maxBytes,
			)
			info.SkippedFiles = append(info.SkippedFiles, att.Filename)
			continue
		}

		name := attachmentName(att.Filename, att.ContentType, i, used)
		file, err := storage.WriteFile(ctx, folder, name, att.Content)
		if err != nil {
			logger.Error("failed to write attachment",
				"filename", name,
				"error", err,
			)
			info.SkippedFiles = append(info.SkippedFiles, att.Filename)
			continue
		}

		info.AttachmentFiles = append(info.AttachmentFiles, file)
	}

	logger.Info("email archived",
		"path", info.FolderPath,
		"attachments", len(info.AttachmentFiles),
		"skipped", len(info.SkippedFiles),
	)

	return info, nil
}

// ParsedFileName returns the type-qualified name of the extracted data file
func ParsedFileName(t models.ContentType) string {
	return fmt.Sprintf("parsed_%s_data.json", t)
}

// WriteParsed stores the extracted data next to an archived email
func (a *Archiver) WriteParsed(ctx context.Context, info Info, settings *types.Settings, t models.ContentType, data *models.ParsedData) (string, error) {
	storage, err := a.storageFor(ctx, settings)
	if err != nil {
		return "", err
	}

	content, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode parsed data: %w", err)
	}

	file, err := storage.WriteFile(ctx, info.Folder, ParsedFileName(t), content)
	if err != nil {
		return "", fmt.Errorf("failed to write parsed data: %w", err)
	}

	return file, nil
}
