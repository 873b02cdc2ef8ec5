package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	appconfig "github.com/semmidev/dumpgram/internal/config"
	"github.com/semmidev/dumpgram/internal/domain"
)

type GDriveDeliverer struct {
	service  *drive.Service
	folderID string
	timeout  time.Duration
}

// LoadOAuthConfig reads an OAuth client secret file scoped to files this app creates.
func LoadOAuthConfig(clientSecretPath string) (*oauth2.Config, error) {
	b, err := os.ReadFile(clientSecretPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret: %w", err)
	}

	cfg, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret: %w", err)
	}

	return cfg, nil
}

// NewGDrive authenticates with a service account key when one is configured,
// otherwise with the OAuth client secret and refresh token.
func NewGDrive(ctx context.Context, cfg appconfig.GDriveConfig, timeout time.Duration) (*GDriveDeliverer, error) {
	var opt option.ClientOption

	if cfg.CredentialsFile != "" {
		opt = option.WithCredentialsFile(cfg.CredentialsFile)
	} else {
		oauthCfg, err := LoadOAuthConfig(cfg.ClientSecretFile)
		if err != nil {
			return nil, err
		}
		ts := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		opt = option.WithTokenSource(ts)
	}

	return newGDrive(ctx, cfg.FolderID, timeout, opt)
}

func newGDrive(ctx context.Context, folderID string, timeout time.Duration, opts ...option.ClientOption) (*GDriveDeliverer, error) {
	service, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive service: %w", err)
	}

	return &GDriveDeliverer{
		service:  service,
		folderID: folderID,
		timeout:  timeout,
	}, nil
}

func (g *GDriveDeliverer) Name() string {
	return "gdrive"
}

// Deliver uploads the archive into the folder; the caption becomes the file description.
func (g *GDriveDeliverer) Deliver(ctx context.Context, filePath string, caption string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w: %w", domain.ErrDelivery, err)
	}
	defer file.Close()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	fileMetadata := &drive.File{
		Name:        filepath.Base(filePath),
		Description: caption,
		Parents:     []string{g.folderID},
	}

	_, err = g.service.Files.Create(fileMetadata).
		Media(file).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to upload to gdrive: %w: %w", domain.ErrDelivery, err)
	}

	return nil
}
