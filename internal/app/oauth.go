package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/semmidev/dumpgram/internal/adapter/delivery"
	"github.com/semmidev/dumpgram/internal/usecase"
)

// DriveAuth walks an operator through Google's consent screen once and prints
// the refresh token to put into delivery.gdrive.refresh_token.
type DriveAuth struct {
	config *oauth2.Config
	logger usecase.Logger
	state  string
}

func NewDriveAuth(logger usecase.Logger, clientSecretPath string) (*DriveAuth, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if clientSecretPath == "" {
		return nil, errors.New("client secret path cannot be empty")
	}

	cfg, err := delivery.LoadOAuthConfig(clientSecretPath)
	if err != nil {
		return nil, err
	}

	return &DriveAuth{
		config: cfg,
		logger: logger,
		state:  uuid.NewString(),
	}, nil
}

func (s *DriveAuth) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/google/drive", func(w http.ResponseWriter, r *http.Request) {
		authURL := s.config.AuthCodeURL(s.state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
		http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
	})

	mux.HandleFunc("GET /auth/google/callback", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != s.state {
			http.Error(w, "invalid state parameter", http.StatusBadRequest)
			return
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code parameter", http.StatusBadRequest)
			return
		}

		token, err := s.config.Exchange(r.Context(), code)
		if err != nil {
			http.Error(w, fmt.Sprintf("token exchange failed: %v", err), http.StatusBadGateway)
			return
		}

		if token.RefreshToken == "" {
			fmt.Fprintln(w, "⚠️ No refresh token returned. Revoke app access & re-authorize.")
			return
		}

		s.logger.Infof("Received Google Drive refresh token")
		fmt.Fprintf(w, "✅ Refresh Token:\n%s\n\nSet it as delivery.gdrive.refresh_token (or DUMPGRAM_DELIVERY_GDRIVE_REFRESH_TOKEN).\n",
			token.RefreshToken)
	})

	return mux
}

// Serve listens on addr until ctx is cancelled.
func (s *DriveAuth) Serve(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Google Drive OAuth server listening on %s, open /auth/google/drive", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("OAuth server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown OAuth server: %w", err)
	}
	s.logger.Infof("OAuth server stopped successfully")
	return nil
}
