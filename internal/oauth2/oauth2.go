// Package oauth2 supplies access tokens for XOAUTH2 mailbox logins.
package oauth2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/altafino/order-mail-extractor/internal/types"
	"golang.org/x/oauth2"
)

// ErrNoToken means no usable token is stored and the authorization flow
// has to be run first.
var ErrNoToken = errors.New("no OAuth2 token available, run the oauth2 command first")

// TokenManager handles OAuth2 token loading, refresh and persistence for
// one account.
type TokenManager struct {
	config    *oauth2.Config
	token     *oauth2.Token
	logger    *slog.Logger
	mu        sync.Mutex
	tokenFile string
}

// NewTokenManager creates a new OAuth2 token manager
func NewTokenManager(config *oauth2.Config, tokenDir string, accountID string, logger *slog.Logger) (*TokenManager, error) {
	if err := os.MkdirAll(tokenDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token directory: %w", err)
	}

	tm := &TokenManager{
		config:    config,
		logger:    logger,
		tokenFile: filepath.Join(tokenDir, tokenFileName(accountID)),
	}

	token, err := tm.loadToken()
	if err != nil {
		logger.Warn("failed to load OAuth2 token", "error", err)
	} else if token != nil {
		tm.token = token
		logger.Debug("loaded existing OAuth2 token",
			"expires_at", token.Expiry.Format(time.RFC3339))
	}

	return tm, nil
}

// ForMailServer builds a token manager from the oauth2 block of a mail
// server's settings
func ForMailServer(srv types.MailServer, redirectURL string, logger *slog.Logger) (*TokenManager, error) {
	cfg, err := GetProviderConfig(srv.OAuth2.Provider, srv.OAuth2.ClientID, srv.OAuth2.ClientSecret, redirectURL)
	if err != nil {
		return nil, err
	}
	return NewTokenManager(cfg, srv.OAuth2.TokenDir, srv.Username, logger)
}

func tokenFileName(accountID string) string {
	safe := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, accountID)
	return safe + ".json"
}

// TokenFile returns where the token is persisted
func (tm *TokenManager) TokenFile() string {
	return tm.tokenFile
}

// DeleteToken removes the persisted token. A missing file is not an error.
func (tm *TokenManager) DeleteToken() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.token = nil
	if err := os.Remove(tm.tokenFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete token file: %w", err)
	}
	return nil
}

// Stored returns a copy of the token held in memory, or nil
func (tm *TokenManager) Stored() *oauth2.Token {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token == nil {
		return nil
	}
	t := *tm.token
	return &t
}

// Config returns the underlying oauth2 configuration
func (tm *TokenManager) Config() *oauth2.Config {
	return tm.config
}

// GetToken returns a valid token, refreshing and persisting it when expired
func (tm *TokenManager) GetToken(ctx context.Context) (*oauth2.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token == nil {
		return nil, ErrNoToken
	}
	if tm.token.Valid() {
		return tm.token, nil
	}
	if tm.token.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token expired without refresh token", ErrNoToken)
	}

	tm.logger.Debug("refreshing OAuth2 token using refresh token")
	newToken, err := tm.config.TokenSource(ctx, tm.token).Token()
	if err != nil {
		tm.logger.Error("failed to refresh OAuth2 token", "error", err)
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	tm.token = newToken
	tm.logger.Debug("OAuth2 token refreshed successfully",
		"expires_at", newToken.Expiry.Format(time.RFC3339))

	if err := tm.saveToken(newToken); err != nil {
		// the refreshed token is still usable for this session
		tm.logger.Warn("failed to save refreshed OAuth2 token", "error", err)
	}

	return newToken, nil
}

// GetAccessToken returns just the access token string
func (tm *TokenManager) GetAccessToken(ctx context.Context) (string, error) {
	token, err := tm.GetToken(ctx)
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Exchange trades an authorization code for a token and stores it
func (tm *TokenManager) Exchange(ctx context.Context, code string) error {
	token, err := tm.config.Exchange(ctx, code, oauth2.AccessTypeOffline)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tm.SetToken(token)
}

// SetToken sets the OAuth2 token and saves it to disk
func (tm *TokenManager) SetToken(token *oauth2.Token) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.token = token
	return tm.saveToken(token)
}

func (tm *TokenManager) loadToken() (*oauth2.Token, error) {
	data, err := os.ReadFile(tm.tokenFile)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &token, nil
}

func (tm *TokenManager) saveToken(token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(tm.tokenFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}

	return nil
}
