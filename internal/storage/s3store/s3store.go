// Package s3store uploads images to an S3-compatible bucket (AWS, MinIO).
package s3store

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sakif/pinboard/internal/storage"
)

var _ storage.ImageStore = (*Store)(nil)

// cacheControl is set on every object. Keys are never reused for
// different content, so clients may cache forever.
const cacheControl = "public, max-age=31536000, immutable"

// Options configures the bucket connection. Endpoint is only needed for
// non-AWS providers; AccessKey/SecretKey fall back to the default AWS
// credential chain when empty.
type Options struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

// objectPutter is the slice of *s3.Client the store uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Store struct {
	client    objectPutter
	bucket    string
	publicURL string
}

// New builds an S3 client from opts. No request is made until Put.
func New(ctx context.Context, opts Options) (*Store, error) {
	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3store: loading aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		// MinIO and most self-hosted providers do not support virtual-host buckets.
		o.UsePathStyle = true
	})

	return newWithClient(client, opts.Bucket, opts.PublicURL), nil
}

func newWithClient(client objectPutter, bucket, publicURL string) *Store {
	return &Store{client: client, bucket: bucket, publicURL: publicURL}
}

func (s *Store) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", storage.ErrInvalidKey)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(cacheControl),
	})
	if err != nil {
		return "", fmt.Errorf("s3store: putting %s/%s: %w", s.bucket, key, err)
	}

	return storage.JoinURL(s.publicURL, key), nil
}
