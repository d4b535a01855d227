package media

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store uploads to AWS S3, or any endpoint speaking the S3 API when
// Config.Endpoint is set.
type S3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

func NewS3Store(cfg *Config) *S3Store {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}

	// Custom endpoints (MinIO, localstack) need path-style addressing.
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return &S3Store{
		client:    s3.New(opts),
		bucket:    cfg.Bucket,
		publicURL: cfg.PublicURL,
	}
}

func (s *S3Store) Upload(ctx context.Context, f *File) (string, error) {
	if !f.Present() {
		return "", ErrNoFile
	}

	file, err := os.Open(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	key := ObjectKey(f)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String(ContentType(f)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return publicURL(s.publicURL, s.bucket, key), nil
}

func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}
