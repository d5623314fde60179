package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/altafino/order-mail-extractor/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fileSettings(root string) *types.Settings {
	s := &types.Settings{}
	s.Storage.Type = "file"
	s.Storage.Path = root
	s.Attachments.MaxSizeMB = 25
	return s
}

func TestFolderName(t *testing.T) {
	date := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		customer string
		order    string
		want     string
	}{
		{"John_Doe", "", "John_Doe_2024-01-15_ORDER_VAR"},
		{"John Doe", "PO-42", "John_Doe_2024-01-15_PO-42"},
		{"Müller & Co.", "A/7", "M_ller___Co__2024-01-15_A_7"},
	}

	for _, tt := range tests {
		if got := FolderName(tt.customer, date, tt.order); got != tt.want {
			t.Errorf("FolderName(%q, %q) = %q, want %q", tt.customer, tt.order, got, tt.want)
		}
	}
}

func TestCustomerName(t *testing.T) {
	tests := map[string]string{
		`"John Doe" <john@example.com>`: "John Doe",
		"jane.smith@example.com":        "jane.smith",
		"<orders@shop.io>":              "orders",
		"":                              "Unknown",
	}

	for in, want := range tests {
		if got := CustomerName(in); got != want {
			t.Errorf("CustomerName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArchiveWritesFiles(t *testing.T) {
	root := t.TempDir()
	a := New(testLogger())

	email := &models.Email{
		Subject: "Order <widgets>",
		From:    "John_Doe <john@example.com>",
		Date:    time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC),
		Body:    "please send 5 <b>widgets</b>? no, plain text & more",
		Attachments: []models.Attachment{
			{Filename: "../po.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.4")},
			{Filename: "po.pdf", ContentType: "application/pdf", Content: []byte("%PDF-1.5")},
			{Filename: "stub.pdf", ContentType: "application/pdf"},
		},
	}

	info, err := a.Archive(context.Background(), email, fileSettings(root), "")
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	wantDir := filepath.Join(root, "John_Doe_2024-01-15_ORDER_VAR")
	if info.FolderPath != wantDir {
		t.Errorf("FolderPath = %q, want %q", info.FolderPath, wantDir)
	}

	if len(info.AttachmentFiles) != 2 {
		t.Fatalf("AttachmentFiles = %v, want 2 files", info.AttachmentFiles)
	}
	for _, f := range info.AttachmentFiles {
		if filepath.Dir(f) != wantDir {
			t.Errorf("attachment %q escaped the archive folder", f)
		}
	}
	if len(info.SkippedFiles) != 1 || info.SkippedFiles[0] != "stub.pdf" {
		t.Errorf("SkippedFiles = %v", info.SkippedFiles)
	}

	html, err := os.ReadFile(info.HTMLFile)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(html, []byte("Order &lt;widgets&gt;")) {
		t.Error("subject must be escaped in html")
	}

	raw, err := os.ReadFile(info.JSONFile)
	if err != nil {
		t.Fatal(err)
	}
	var meta emailMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.AttachmentCount != 3 || meta.AttachmentBytes != 16 {
		t.Errorf("meta count/bytes = %d/%d", meta.AttachmentCount, meta.AttachmentBytes)
	}
}

func TestArchiveSkipsOversizedAttachment(t *testing.T) {
	root := t.TempDir()
	a := New(testLogger())

	email := &models.Email{
		From: "John_Doe <john@example.com>",
		Date: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Attachments: []models.Attachment{
			{Filename: "huge.zip", Content: make([]byte, 30*1024*1024)},
		},
	}

	info, err := a.Archive(context.Background(), email, fileSettings(root), "")
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if len(info.AttachmentFiles) != 0 {
		t.Errorf("AttachmentFiles = %v, want none", info.AttachmentFiles)
	}
	if _, err := os.Stat(filepath.Join(info.FolderPath, "huge.zip")); !os.IsNotExist(err) {
		t.Error("oversized attachment was written")
	}
}

func TestArchiveHTMLBodyKeptAsHTML(t *testing.T) {
	root := t.TempDir()
	a := New(testLogger())

	email := &models.Email{
		From:   "a@b.c",
		Body:   "<p>Hello <b>there</b></p>",
		IsHTML: true,
	}

	info, err := a.Archive(context.Background(), email, fileSettings(root), "X1")
	if err != nil {
		t.Fatal(err)
	}

	html, _ := os.ReadFile(info.HTMLFile)
	if !strings.Contains(string(html), "<p>Hello <b>there</b></p>") {
		t.Errorf("html body was escaped: %s", html)
	}
}

func TestWriteParsed(t *testing.T) {
	root := t.TempDir()
	a := New(testLogger())
	settings := fileSettings(root)

	info, err := a.Archive(context.Background(), &models.Email{From: "x@y.z"}, settings, "7")
	if err != nil {
		t.Fatal(err)
	}

	data := &models.ParsedData{CustomerName: "X", Items: []models.LineItem{{Description: "bolts", Quantity: 3}}}
	file, err := a.WriteParsed(context.Background(), info, settings, models.TypeOrder, data)
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Base(file) != "parsed_order_data.json" || filepath.Dir(file) != info.FolderPath {
		t.Errorf("parsed file = %q", file)
	}
}

type failingStorage struct{}

func (failingStorage) EnsureFolder(ctx context.Context, folder string) (string, error) {
	return "", errors.New("disk full")
}

func (failingStorage) WriteFile(ctx context.Context, folder, name string, content []byte) (string, error) {
	return "", errors.New("disk full")
}

func TestArchiveFolderFailure(t *testing.T) {
	a := NewWithStorage(failingStorage{}, testLogger())

	_, err := a.Archive(context.Background(), &models.Email{From: "x@y.z"}, fileSettings(t.TempDir()), "")

	var archiveErr *ArchiveError
	if !errors.As(err, &archiveErr) {
		t.Fatalf("error = %v, want *ArchiveError", err)
	}
}
