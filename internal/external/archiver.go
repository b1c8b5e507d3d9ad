package external

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"expirywatch/internal/types"
)

// s3API is the subset of the S3 SDK client used by the archiver.
// This interface enables testing with a mock client.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads purged notification batches to cold storage before the
// rows are dropped from Postgres.
type S3Archiver struct {
	api    s3API
	bucket string
	logger *slog.Logger
}

// NewS3Archiver creates an archiver writing to the given bucket.
func NewS3Archiver(client *s3.Client, bucket string, logger *slog.Logger) *S3Archiver {
	return newS3Archiver(client, bucket, logger)
}

// newS3Archiver accepts the narrow API interface for testing.
func newS3Archiver(api s3API, bucket string, logger *slog.Logger) *S3Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Archiver{
		api:    api,
		bucket: bucket,
		logger: logger,
	}
}

// UploadArchive stores one gzip JSONL batch under the given key.
func (a *S3Archiver) UploadArchive(ctx context.Context, key string, data []byte) error {
	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(data),
		ContentType:     aws.String("application/gzip"),
		ContentEncoding: aws.String("gzip"),
		StorageClass:    "GLACIER_IR",
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "failed to upload notification archive", err)
	}

	a.logger.InfoContext(ctx, "notification archive uploaded",
		"bucket", a.bucket,
		"key", key,
		"bytes", len(data),
	)
	return nil
}
