package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive keeps one JSON snapshot of each day's report.
type S3Archive struct {
	client s3API
	bucket string
}

// NewS3Archive loads AWS config and targets bucket.
func NewS3Archive(ctx context.Context, bucket, region, profile string) (*S3Archive, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewS3ArchiveWithClient(s3.NewFromConfig(cfg), bucket), nil
}

// NewS3ArchiveWithClient wraps an existing client.
func NewS3ArchiveWithClient(client s3API, bucket string) *S3Archive {
	return &S3Archive{client: client, bucket: bucket}
}

// ArchiveKey is the object key for the report of day.
func ArchiveKey(day time.Time) string {
	return fmt.Sprintf("reports/%s.json", day.UTC().Format("2006/01/02"))
}

// Put writes data as indented JSON under the key for day and returns the key.
func (a *S3Archive) Put(ctx context.Context, day time.Time, data any) (string, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling data: %w", err)
	}

	key := ArchiveKey(day)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(jsonData),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("putting object to S3 bucket %s: %w", a.bucket, err)
	}
	return key, nil
}
