package email

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a header search matches no message
	ErrNotFound = errors.New("message not found")
	// ErrRefetch wraps every failure of a late attachment retrieval
	ErrRefetch = errors.New("failed to re-fetch message")
	// ErrStop can be returned by a FetchFull callback to end the stream early
	ErrStop = errors.New("stop fetching")
)

// ConnectError is a failure to reach the mail server. Hint carries a short
// human readable explanation derived from the underlying network error.
type ConnectError struct {
	Server string
	Hint   string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("failed to connect to %s: %s: %v", e.Server, e.Hint, e.Err)
	}
	return fmt.Sprintf("failed to connect to %s: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError is a rejected login
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// SearchError is a failure to select the mailbox or run a search
type SearchError struct {
	Err error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("mailbox search failed: %v", e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

func newConnectError(server string, err error) *ConnectError {
	return &ConnectError{Server: server, Hint: connectHint(err), Err: err}
}

// connectHint maps common dial failures to something an operator can act on.
func connectHint(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"):
		return "connection refused, check server and port"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"), strings.Contains(msg, "deadline exceeded"):
		return "connection timed out, check firewall and server address"
	case strings.Contains(msg, "no such host"):
		return "server host name could not be resolved"
	case strings.Contains(msg, "certificate"):
		return "TLS certificate was rejected, check verify_cert"
	case strings.Contains(msg, "tls"), strings.Contains(msg, "handshake"):
		return "TLS handshake failed, check the ssl setting and port"
	}
	return ""
}
