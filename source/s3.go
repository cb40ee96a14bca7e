package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Resolver.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures the S3 client.
type S3Config struct {
	// Region is the AWS region.
	// Default: from the environment
	Region string `yaml:"region"`

	// Endpoint overrides the service endpoint for S3-compatible stores.
	Endpoint string `yaml:"endpoint"`

	// UsePathStyle addresses buckets as path elements instead of hosts.
	UsePathStyle bool `yaml:"use_path_style"`

	// MaxRetries bounds SDK-level retries.
	// Default: SDK default
	MaxRetries int `yaml:"max_retries"`
}

// NewS3Client builds an S3 client from the default credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxRetries))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("source: load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// S3Resolver serves "s3://bucket/key" URIs.
//
// Metadata comes from HeadObject; Open issues a GetObject conditioned on
// the ETag seen at resolve time, so the bytes read always match the
// modification time reported.
type S3Resolver struct {
	client S3API
}

// NewS3Resolver creates a resolver over client.
func NewS3Resolver(client S3API) *S3Resolver {
	return &S3Resolver{client: client}
}

// ParseS3URI splits "s3://bucket/key" into bucket and key.
func ParseS3URI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not an s3 uri", ErrInvalidURI, uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidURI, uri)
	}
	return bucket, key, nil
}

// Resolve heads the object.
func (r *S3Resolver) Resolve(ctx context.Context, uri string) (Source, error) {
	bucket, key, err := ParseS3URI(uri)
	if err != nil {
		return nil, err
	}

	out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, translateS3Error(err, uri)
	}

	src := &s3Source{
		client: r.client,
		bucket: bucket,
		key:    key,
		etag:   aws.ToString(out.ETag),
		mime:   aws.ToString(out.ContentType),
		length: -1,
	}
	if out.LastModified != nil {
		src.modTime = *out.LastModified
	}
	if out.ContentLength != nil {
		src.length = *out.ContentLength
	}
	return src, nil
}

// Release is a no-op; the object body is closed by the reader that opened it.
func (r *S3Resolver) Release(Source) {}

func translateS3Error(err error, uri string) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	return fmt.Errorf("source: s3 %s: %w", uri, err)
}

type s3Source struct {
	client  S3API
	bucket  string
	key     string
	etag    string
	mime    string
	modTime time.Time
	length  int64
}

func (s *s3Source) URI() string             { return "s3://" + s.bucket + "/" + s.key }
func (s *s3Source) LastModified() time.Time { return s.modTime }
func (s *s3Source) ContentLength() int64    { return s.length }

func (s *s3Source) MimeType() string {
	if s.mime != "" {
		return s.mime
	}
	return MimeTypeByName(s.key)
}

func (s *s3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}
	if s.etag != "" {
		in.IfMatch = aws.String(s.etag)
	}
	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, translateS3Error(err, s.URI())
	}
	return out.Body, nil
}
