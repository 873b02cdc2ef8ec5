package delivery

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/semmidev/dumpgram/internal/config"
	"github.com/semmidev/dumpgram/internal/domain"
)

// S3Deliverer puts the archive into a bucket, keeping the caption as object metadata.
type S3Deliverer struct {
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
	timeout  time.Duration
}

// NewS3 creates a new S3Deliverer using AWS SDK v2. Static credentials are
// used when configured, otherwise the default provider chain applies.
func NewS3(ctx context.Context, cfg appconfig.S3Config, timeout time.Duration) (*S3Deliverer, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Deliverer{
		uploader: s3manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		timeout:  timeout,
	}, nil
}

func (s *S3Deliverer) Name() string {
	return "s3"
}

// Key returns the object key an archive at filePath is stored under.
func (s *S3Deliverer) Key(filePath string) string {
	return path.Join(s.prefix, filepath.Base(filePath))
}

func (s *S3Deliverer) Deliver(ctx context.Context, filePath string, caption string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w: %w", domain.ErrDelivery, err)
	}
	defer file.Close()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.Key(filePath)),
		Body:     file,
		Metadata: map[string]string{"caption": caption},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w: %w", domain.ErrDelivery, err)
	}

	return nil
}
