package oauth2

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// WaitForCode serves the OAuth2 redirect on addr and returns the
// authorization code once the browser comes back with a matching state.
func WaitForCode(ctx context.Context, addr, state string, logger *slog.Logger) (string, error) {
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start local server: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "State mismatch", http.StatusBadRequest)
			return
		}

		code := q.Get("code")
		if code == "" {
			select {
			case errChan <- fmt.Errorf("no code in callback: %s", q.Get("error")):
			default:
			}
			http.Error(w, "No code provided", http.StatusBadRequest)
			return
		}

		select {
		case codeChan <- code:
		default:
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body style="font-family: sans-serif; text-align: center; padding: 50px">
<h2>Authentication successful</h2><p>You can close this window.</p></body></html>`)
	})

	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- fmt.Errorf("server error: %w", err):
			default:
			}
		}
	}()

	logger.Debug("started local OAuth2 server", "url", "http://"+listener.Addr().String())

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errChan:
		return "", err
	case <-timeoutCtx.Done():
		return "", fmt.Errorf("timeout waiting for authorization")
	}
}
