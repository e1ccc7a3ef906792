package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/custodia-labs/greds/internal/core/domain"
	"github.com/custodia-labs/greds/internal/core/ports/driven"
)

// Ensure S3Sink implements the interface.
var _ driven.AuditSink = (*S3Sink)(nil)

// S3Config holds configuration for the S3 audit sink.
type S3Config struct {
	// Bucket receives the audit objects (required).
	Bucket string

	// Prefix is prepended to every object key.
	Prefix string

	// Region is the bucket region.
	Region string

	// Endpoint overrides the S3 endpoint for MinIO and other compatible stores.
	// Setting it also enables path-style addressing.
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials.
	// When empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// putObjectAPI is the subset of the S3 client used by the sink.
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes each event as its own JSON lines object.
type S3Sink struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Sink creates an S3 sink from cfg.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: audit bucket is required", domain.ErrInvalidInput)
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Sink(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Sink(client putObjectAPI, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: prefix}
}

// Record uploads event as a single-line object.
func (s *S3Sink) Record(ctx context.Context, event domain.AuditEvent) error {
	event = withDefaults(event)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling audit event: %w", err)
	}
	body = append(body, '\n')

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.Key(event)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("uploading audit event: %w", err)
	}
	return nil
}

// Key returns the object key of event.
func (s *S3Sink) Key(event domain.AuditEvent) string {
	ts := event.Timestamp.UTC()
	name := strconv.FormatInt(ts.UnixNano(), 10) + "-" + event.ID + ".jsonl"
	return path.Join(s.prefix, ts.Format(dateLayout), string(event.EventType), name)
}

// Close releases resources.
func (s *S3Sink) Close() error {
	return nil
}
