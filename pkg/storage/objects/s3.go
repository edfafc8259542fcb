// Package objects stores evidence and policy file contents in S3-compatible
// object storage.
package objects

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/grc-gateway/pkg/observability"
	"github.com/platinummonkey/grc-gateway/pkg/storage"
)

var tracer = otel.Tracer("github.com/platinummonkey/grc-gateway/pkg/storage/objects")

// Store is the object storage used by the file handlers
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// S3Client implements Store on aws-sdk-go-v2
type S3Client struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	presignTTL time.Duration
	metrics    *observability.Metrics
}

// NewS3Client creates a new S3 client. Static credentials are used when
// configured, otherwise the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg storage.Config, metrics *observability.Metrics) (*S3Client, error) {
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3ForcePathStyle
	})

	ttl := cfg.S3PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &S3Client{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.S3Bucket,
		presignTTL: ttl,
		metrics:    metrics,
	}, nil
}

func (c *S3Client) startSpan(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "S3."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("s3.operation", op),
			attribute.String("s3.bucket", c.bucket),
			attribute.String("s3.key", key),
		),
	)
}

func (c *S3Client) finish(span trace.Span, op string, err error) {
	c.metrics.ObserveObjectStore(op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, op+" failed")
		return
	}
	span.SetStatus(codes.Ok, "")
}

// Put uploads body under key
func (c *S3Client) Put(ctx context.Context, key string, body []byte, contentType string) (err error) {
	ctx, span := c.startSpan(ctx, "PutObject", key)
	defer span.End()
	defer func() { c.finish(span, "put", err) }()

	span.SetAttributes(attribute.Int("content.size", len(body)))

	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}

// Delete removes the object. A missing object is not an error.
func (c *S3Client) Delete(ctx context.Context, key string) (err error) {
	ctx, span := c.startSpan(ctx, "DeleteObject", key)
	defer span.End()
	defer func() { c.finish(span, "delete", err) }()

	_, err = c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil
		}
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// PresignGet returns a time-limited download URL for key
func (c *S3Client) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.presignTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign object: %w", err)
	}
	return req.URL, nil
}

// EnsureBucket creates the bucket when it does not exist, for local
// S3-compatible servers.
func (c *S3Client) EnsureBucket(ctx context.Context) error {
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err == nil {
		return nil
	}

	_, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Probe reports bucket reachability for the readiness endpoint
func (c *S3Client) Probe() observability.Probe {
	return observability.Probe{
		Name: "object_storage",
		Check: func(ctx context.Context) error {
			_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
			return err
		},
	}
}
