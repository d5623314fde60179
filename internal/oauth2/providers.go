package oauth2

import (
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

type provider struct {
	scopes   []string
	endpoint oauth2.Endpoint
}

var providers = map[string]provider{
	"google": {
		scopes:   []string{"https://mail.google.com/"},
		endpoint: google.Endpoint,
	},
	"microsoft": {
		scopes: []string{
			"https://outlook.office.com/IMAP.AccessAsUser.All",
			"offline_access",
		},
		endpoint: microsoft.AzureADEndpoint("common"),
	},
}

// GetProviderConfig returns the OAuth2 config for a specific provider
func GetProviderConfig(name, clientID, clientSecret, redirectURL string) (*oauth2.Config, error) {
	p, ok := providers[name]
	if !ok {
		return nil, fmt.Errorf("unsupported OAuth2 provider: %s", name)
	}

	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       p.scopes,
		Endpoint:     p.endpoint,
	}, nil
}
