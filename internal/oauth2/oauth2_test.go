package oauth2

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestXOAUTH2InitialResponse(t *testing.T) {
	mech, ir, err := NewXOAUTH2Client("me@example.com", "tok").Start()
	if err != nil {
		t.Fatal(err)
	}
	if mech != "XOAUTH2" {
		t.Errorf("mech = %q", mech)
	}
	if string(ir) != "user=me@example.com\x01auth=Bearer tok\x01\x01" {
		t.Errorf("ir = %q", ir)
	}
}

func TestTokenManagerPersistsToken(t *testing.T) {
	dir := t.TempDir()
	cfg, err := GetProviderConfig("google", "id", "secret", "http://localhost:8085/oauth/callback")
	if err != nil {
		t.Fatal(err)
	}

	tm, err := NewTokenManager(cfg, dir, "me@example.com", testLogger())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := tm.GetAccessToken(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Fatalf("error = %v, want ErrNoToken", err)
	}

	tok := &oauth2.Token{AccessToken: "abc", Expiry: time.Now().Add(time.Hour)}
	if err := tm.SetToken(tok); err != nil {
		t.Fatal(err)
	}

	reloaded, err := NewTokenManager(cfg, dir, "me@example.com", testLogger())
	if err != nil {
		t.Fatal(err)
	}
	got, err := reloaded.GetAccessToken(context.Background())
	if err != nil || got != "abc" {
		t.Errorf("GetAccessToken() = %q, %v", got, err)
	}
}

func TestGetProviderConfigUnknown(t *testing.T) {
	if _, err := GetProviderConfig("yahoo", "", "", ""); err == nil {
		t.Error("expected error for unknown provider")
	}
}
