package oauth2

import (
	"github.com/emersion/go-sasl"
)

// XOAUTH2 is the SASL mechanism name used by Gmail and Outlook
const XOAUTH2 = "XOAUTH2"

// NewXOAUTH2Client creates a SASL client for XOAUTH2 authentication.
// go-sasl only ships OAUTHBEARER, which not every provider accepts.
func NewXOAUTH2Client(username, token string) sasl.Client {
	return &xoauth2Client{
		username: username,
		token:    token,
	}
}

type xoauth2Client struct {
	username string
	token    string
}

// Start sends "user=<username>\x01auth=Bearer <token>\x01\x01"
func (a *xoauth2Client) Start() (mech string, ir []byte, err error) {
	ir = []byte("user=" + a.username + "\x01auth=Bearer " + a.token + "\x01\x01")
	return XOAUTH2, ir, nil
}

// Next answers a server challenge. On failure the server sends a JSON error
// document and expects an empty response before it reports the failure.
func (a *xoauth2Client) Next(challenge []byte) ([]byte, error) {
	if len(challenge) > 0 {
		return []byte{}, nil
	}
	return nil, sasl.ErrUnexpectedServerChallenge
}
