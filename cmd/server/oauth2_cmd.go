package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/altafino/order-mail-extractor/internal/oauth2"
	"github.com/altafino/order-mail-extractor/internal/types"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	goauth2 "golang.org/x/oauth2"
)

const defaultCallbackAddr = "localhost:8085"

var callbackAddr string

// CreateOAuth2Command creates and returns the OAuth2 command
func CreateOAuth2Command() *cobra.Command {
	oauth2Cmd := &cobra.Command{
		Use:   "oauth2",
		Short: "OAuth2 token management",
		Long:  `Manage the OAuth2 token used for XOAUTH2 IMAP logins`,
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate OAuth2 token",
		Long:  `Run the browser authorization flow and store the resulting token`,
		RunE:  generateOAuth2Token,
	}
	generateCmd.Flags().StringVar(&callbackAddr, "callback-addr", defaultCallbackAddr, "address of the local redirect listener")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored OAuth2 token",
		RunE:  showOAuth2Token,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete OAuth2 token",
		RunE:  deleteOAuth2Token,
	}

	oauth2Cmd.AddCommand(generateCmd, statusCmd, deleteCmd)
	return oauth2Cmd
}

// imapOAuth2 returns the IMAP settings, rejecting configurations without OAuth2
func imapOAuth2() (types.MailServer, error) {
	store, err := loadSettings()
	if err != nil {
		return types.MailServer{}, fmt.Errorf("failed to load settings: %w", err)
	}

	srv := store.Get().IMAP
	if !srv.OAuth2.Enabled {
		return types.MailServer{}, fmt.Errorf("OAuth2 is not enabled in the imap settings")
	}
	return srv, nil
}

func generateOAuth2Token(cmd *cobra.Command, args []string) error {
	srv, err := imapOAuth2()
	if err != nil {
		return err
	}

	redirectURL := (&url.URL{Scheme: "http", Host: callbackAddr, Path: "/oauth/callback"}).String()
	tm, err := oauth2.ForMailServer(srv, redirectURL, log)
	if err != nil {
		return err
	}

	state := uuid.NewString()
	authURL := tm.Config().AuthCodeURL(state, goauth2.AccessTypeOffline, goauth2.ApprovalForce)

	fmt.Printf("Please open the following URL in your browser:\n\n%s\n\n", authURL)
	fmt.Println("Waiting for authentication...")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	code, err := oauth2.WaitForCode(ctx, callbackAddr, state, log)
	if err != nil {
		return fmt.Errorf("failed to get authorization code: %w", err)
	}

	fmt.Println("Authorization code received, exchanging for token...")
	if err := tm.Exchange(ctx, code); err != nil {
		return err
	}

	token := tm.Stored()
	fmt.Printf("OAuth2 token generated and saved for %s\n", srv.Username)
	fmt.Printf("Token file: %s\n", tm.TokenFile())
	fmt.Printf("Token expires at: %s\n", token.Expiry.Format(time.DateTime))
	return nil
}

func showOAuth2Token(cmd *cobra.Command, args []string) error {
	srv, err := imapOAuth2()
	if err != nil {
		return err
	}

	tm, err := oauth2.ForMailServer(srv, "", log)
	if err != nil {
		return err
	}

	token := tm.Stored()
	if token == nil {
		fmt.Printf("No OAuth2 token found for %s\n", srv.Username)
		return nil
	}

	fmt.Printf("Account: %s\n", srv.Username)
	fmt.Printf("  File: %s\n", tm.TokenFile())
	fmt.Printf("  Expires: %s\n", token.Expiry.Format(time.DateTime))
	fmt.Printf("  Valid: %v\n", token.Valid())
	fmt.Printf("  Refreshable: %v\n", token.RefreshToken != "")
	return nil
}

func deleteOAuth2Token(cmd *cobra.Command, args []string) error {
	srv, err := imapOAuth2()
	if err != nil {
		return err
	}

	tm, err := oauth2.ForMailServer(srv, "", log)
	if err != nil {
		return err
	}
	if err := tm.DeleteToken(); err != nil {
		return err
	}

	fmt.Printf("OAuth2 token deleted for %s\n", srv.Username)
	return nil
}
