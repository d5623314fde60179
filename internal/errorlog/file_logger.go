package errorlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/altafino/order-mail-extractor/internal/utility/u_io"
	"github.com/google/uuid"
)

const filePrefix = "errors_"

// FileLogger keeps one JSON array file per config and day
type FileLogger struct {
	logger      *slog.Logger
	storagePath string
	mu          sync.Mutex
	now         func() time.Time
}

// NewFileLogger creates a new file-based error logger
func NewFileLogger(storagePath string, logger *slog.Logger) (*FileLogger, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create error log directory: %w", err)
	}

	return &FileLogger{
		logger:      logger,
		storagePath: storagePath,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// LogError appends err to the journal file of its day
func (f *FileLogger) LogError(e EmailError) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ErrorTime.IsZero() {
		e.ErrorTime = f.now()
	}

	filePath := filepath.Join(f.storagePath, fileName(e.ConfigID, e.ErrorTime))

	entries, err := readEntries(filePath)
	if err != nil && !os.IsNotExist(err) {
		// a corrupt journal must not block new entries
		f.logger.Warn("error log file could not be read, starting a new one",
			"file", filePath,
			"error", err)
		entries = nil
	}
	entries = append(entries, e)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal error log: %w", err)
	}
	if err := u_io.WriteFileAtomic(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write error log file: %w", err)
	}

	f.logger.Debug("journaled email error",
		"error_id", e.ID,
		"uid", e.UID,
		"stage", e.Stage,
		"file", filePath)
	return nil
}

func fileName(configID string, t time.Time) string {
	if configID == "" {
		configID = "default"
	}
	return fmt.Sprintf("%s%s_%s.json", filePrefix, u_io.CleanFilename(configID), t.UTC().Format(time.DateOnly))
}

// fileDate extracts the day from errors_<config>_<YYYY-MM-DD>.json
func fileDate(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, ".json")
	if len(base) < len(time.DateOnly) {
		return time.Time{}, false
	}
	t, err := time.Parse(time.DateOnly, base[len(base)-len(time.DateOnly):])
	return t, err == nil
}

func readEntries(path string) ([]EmailError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []EmailError
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (f *FileLogger) journalFiles() ([]os.DirEntry, error) {
	files, err := os.ReadDir(f.storagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read error log directory: %w", err)
	}
	out := files[:0]
	for _, file := range files {
		if file.IsDir() || !strings.HasPrefix(file.Name(), filePrefix) || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		out = append(out, file)
	}
	return out, nil
}

// GetErrors returns matching entries, newest first
func (f *FileLogger) GetErrors(filter Filter) ([]EmailError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	files, err := f.journalFiles()
	if err != nil {
		return nil, err
	}

	var result []EmailError
	for _, file := range files {
		filePath := filepath.Join(f.storagePath, file.Name())
		entries, err := readEntries(filePath)
		if err != nil {
			f.logger.Warn("failed to read error log file", "file", filePath, "error", err)
			continue
		}
		for _, e := range entries {
			if filter.matches(e) {
				result = append(result, e)
			}
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ErrorTime.After(result[j].ErrorTime)
	})
	return result, nil
}

// CleanupOldErrors deletes journal files older than retentionDays. Files
// without a date in their name fall back to the modification time.
func (f *FileLogger) CleanupOldErrors(retentionDays int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := f.now().AddDate(0, 0, -retentionDays)

	files, err := f.journalFiles()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, file := range files {
		day, ok := fileDate(file.Name())
		if !ok {
			info, err := file.Info()
			if err != nil {
				f.logger.Warn("failed to get file info", "file", file.Name(), "error", err)
				continue
			}
			day = info.ModTime()
		}
		if !day.Before(cutoff) {
			continue
		}

		filePath := filepath.Join(f.storagePath, file.Name())
		if err := os.Remove(filePath); err != nil {
			f.logger.Warn("failed to delete old error log file", "file", filePath, "error", err)
			continue
		}
		removed++
	}

	f.logger.Debug("cleaned up error logs",
		"retention_days", retentionDays,
		"removed", removed)
	return removed, nil
}

// Close implements Logger
func (f *FileLogger) Close() error {
	return nil
}
