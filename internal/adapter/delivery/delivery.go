package delivery

import (
	"context"
	"fmt"

	appconfig "github.com/semmidev/dumpgram/internal/config"
	"github.com/semmidev/dumpgram/internal/domain"
)

// New returns the deliverer selected by delivery.provider.
func New(ctx context.Context, cfg *appconfig.Config) (domain.Deliverer, error) {
	d := cfg.Delivery

	switch d.Provider {
	case "telegram":
		return NewTelegram(cfg.Target(), d.Telegram.APIEndpoint, d.Timeout), nil
	case "s3":
		return NewS3(ctx, d.S3, d.Timeout)
	case "gdrive":
		return NewGDrive(ctx, d.GDrive, d.Timeout)
	default:
		return nil, fmt.Errorf("unknown delivery provider: %s", d.Provider)
	}
}
