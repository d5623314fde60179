package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadWritesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	store, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected defaults to be written: %v", err)
	}

	cfg := store.Get()
	if cfg.Protocol != "imap" {
		t.Errorf("Protocol = %q, want imap", cfg.Protocol)
	}
	if cfg.Attachments.MaxSizeMB != 25 {
		t.Errorf("MaxSizeMB = %d, want 25", cfg.Attachments.MaxSizeMB)
	}
}

func TestLoadExpandsEnvAndMergesDefaults(t *testing.T) {
	t.Setenv("OME_TEST_PASSWORD", "s3cret")

	path := filepath.Join(t.TempDir(), "settings.yaml")
	doc := `
meta:
  id: shop
imap:
  server: imap.example.com
  username: orders@example.com
  password: ${OME_TEST_PASSWORD}
`
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cfg := store.Get()
	if cfg.IMAP.Password != "s3cret" {
		t.Errorf("Password = %q, want expanded value", cfg.IMAP.Password)
	}
	if cfg.Meta.ID != "shop" {
		t.Errorf("Meta.ID = %q, want shop", cfg.Meta.ID)
	}
	if cfg.IMAP.Port != 993 {
		t.Errorf("IMAP.Port = %d, want default 993", cfg.IMAP.Port)
	}
}

func TestReplacePersistsBeforeSwap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	store, err := Load(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	next := store.Get()
	next.AI.Enabled = true
	next.AI.Provider = "cloud"
	next.AI.Cloud.APIKey = "key-1"
	if err := store.Replace(next); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	reopened, err := Load(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	got := reopened.Get()
	if !got.AI.Enabled || got.AI.Cloud.APIKey != "key-1" {
		t.Errorf("persisted AI = %+v", got.AI)
	}
}

func TestReplaceRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	store, err := Load(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	bad := store.Get()
	bad.Protocol = "smtp"
	if err := store.Replace(bad); err == nil {
		t.Fatal("expected validation error")
	}

	if store.Get().Protocol != "imap" {
		t.Error("invalid replace must not change cached settings")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")

	store, err := Load(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	cfg := store.Get()
	cfg.Protocol = "pop3"

	if store.Get().Protocol != "imap" {
		t.Error("mutating a returned copy leaked into the store")
	}
}
