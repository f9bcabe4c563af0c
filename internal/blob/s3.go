// Package blob uploads result archives to an S3-compatible bucket.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/raphaelgruber/annobridge/internal/config"
)

// Store writes objects into one configured bucket. An unconfigured store is
// valid; Configured reports false and the publisher skips uploads.
type Store struct {
	client   *s3.Client
	bucket   string
	endpoint string
}

// New builds a store from the S3 settings. Custom endpoints (MinIO and
// friends) use path-style addressing.
func New(ctx context.Context, cfg config.S3Config) (*Store, error) {
	if !cfg.Complete() {
		return &Store{}, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &Store{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
	}, nil
}

// Configured reports whether uploads can be performed.
func (s *Store) Configured() bool {
	return s.client != nil
}

// Upload puts one object into the bucket.
func (s *Store) Upload(ctx context.Context, key string, body io.Reader) error {
	if s.client == nil {
		return fmt.Errorf("blob store not configured")
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// ObjectURL returns the externally reachable URL of an uploaded object.
func (s *Store) ObjectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
}
