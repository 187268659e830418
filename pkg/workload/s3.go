package workload

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/reactor/internal/errors"
)

// PutObjectAPI is the part of *s3.Client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader stores reports in an S3 bucket.
//
// Example usage:
//
//	client := workload.NewS3Client("eu-west-1", "")
//	sink := workload.NewS3Uploader(client, "bench-results", "reactor/")
//	location, err := sink.Put(ctx, report)
type S3Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Uploader creates an uploader writing to bucket under prefix.
func NewS3Uploader(client PutObjectAPI, bucket, prefix string) *S3Uploader {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Uploader{client: client, bucket: bucket, prefix: prefix}
}

// Put uploads r as JSON and returns its s3:// location. Failures are W302
// errors.
func (u *S3Uploader) Put(ctx context.Context, r *Report) (string, error) {
	var buf bytes.Buffer
	if err := r.WriteJSON(&buf); err != nil {
		return "", errors.New(errors.CodeReportUpload).Wrap(err)
	}

	key := u.prefix + r.Key()
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"run-id":    r.RunID,
			"kind":      r.Kind,
			"timestamp": r.Run.Timestamp,
		},
	})
	if err != nil {
		return "", errors.New(errors.CodeReportUpload).
			Wrap(err).
			WithArgs("bucket", u.bucket, "key", key)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}

// NewS3Client creates an S3 client for region. A non-empty endpoint selects
// an S3-compatible store with path-style addressing. Credentials come from
// AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN.
func NewS3Client(region, endpoint string) *s3.Client {
	opts := s3.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(aws.CredentialsProviderFunc(envCredentials)),
	}
	if endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

func envCredentials(context.Context) (aws.Credentials, error) {
	id := os.Getenv("AWS_ACCESS_KEY_ID")
	secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.Credentials{}, errors.New(errors.CodeReportUpload).
			WithDetail("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set to upload reports.")
	}
	return aws.Credentials{
		AccessKeyID:     id,
		SecretAccessKey: secret,
		SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		Source:          "environment",
	}, nil
}
