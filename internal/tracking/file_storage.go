package tracking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/altafino/order-mail-extractor/internal/utility/u_io"
)

// FileStorage keeps the journal in a single JSON file and an in-memory index
type FileStorage struct {
	basePath    string
	recordsPath string
	mu          sync.RWMutex
	initialized bool
	records     map[string]SeenRecord
}

// NewFileStorage creates a new file-based storage
func NewFileStorage(basePath string) (*FileStorage, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path cannot be empty")
	}

	return &FileStorage{
		basePath:    basePath,
		recordsPath: filepath.Join(basePath, "pop3_seen.json"),
	}, nil
}

func recordKey(server, username, uid string) string {
	return server + "\x00" + username + "\x00" + uid
}

// Initialize creates the journal directory and loads existing records
func (fs *FileStorage) Initialize() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	records, err := fs.loadRecords()
	if err != nil {
		return err
	}

	fs.records = make(map[string]SeenRecord, len(records))
	for _, r := range records {
		fs.records[recordKey(r.Server, r.Username, r.UID)] = r
	}

	fs.initialized = true
	return nil
}

// Close cleans up any resources
func (fs *FileStorage) Close() error {
	return nil
}

// AddRecord marks a message as seen and persists the journal
func (fs *FileStorage) AddRecord(record SeenRecord) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.initialized {
		return ErrStorageNotInitialized
	}

	if record.SeenAt.IsZero() {
		record.SeenAt = time.Now().UTC()
	}
	fs.records[recordKey(record.Server, record.Username, record.UID)] = record

	return fs.saveRecords()
}

// HasRecord reports whether the message was marked as seen
func (fs *FileStorage) HasRecord(server, username, uid string) (bool, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if !fs.initialized {
		return false, ErrStorageNotInitialized
	}

	_, ok := fs.records[recordKey(server, username, uid)]
	return ok, nil
}

// CleanupOldRecords drops records older than retentionDays and returns how
// many were removed
func (fs *FileStorage) CleanupOldRecords(retentionDays int) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.initialized {
		return 0, ErrStorageNotInitialized
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	removed := 0
	for k, r := range fs.records {
		if r.SeenAt.Before(cutoff) {
			delete(fs.records, k)
			removed++
		}
	}

	if removed == 0 {
		return 0, nil
	}
	return removed, fs.saveRecords()
}

func (fs *FileStorage) loadRecords() ([]SeenRecord, error) {
	data, err := os.ReadFile(fs.recordsPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read records file: %w", err)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var records []SeenRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse records file: %w", err)
	}

	return records, nil
}

// saveRecords writes all records to the file. Callers hold the lock.
func (fs *FileStorage) saveRecords() error {
	records := make([]SeenRecord, 0, len(fs.records))
	for _, r := range fs.records {
		records = append(records, r)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize records: %w", err)
	}

	if err := u_io.WriteFileAtomic(fs.recordsPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write records file: %w", err)
	}

	return nil
}
