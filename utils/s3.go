package utils

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config describes an S3-compatible bucket. With AccountID set and no Endpoint the bucket is
// addressed on Cloudflare R2.
type S3Config struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Endpoint   string
	Region     string
	PresignTTL time.Duration
}

// S3Store keeps blobs in an S3-compatible bucket and hands out presigned GET URLs.
type S3Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	bucket     string
	presignTTL time.Duration
}

func NewS3Store(ctx context.Context, c S3Config) (*S3Store, error) {
	if c.Bucket == "" {
		return nil, fmt.Errorf("R2_BUCKET_NAME is not set")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return nil, fmt.Errorf("R2_ACCESS_KEY_ID or R2_SECRET_ACCESS_KEY is not set")
	}
	region := c.Region
	if region == "" {
		region = "auto" // required by the SDK, R2 ignores it
	}
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	endpoint := c.Endpoint
	if endpoint == "" && c.AccountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	ttl := c.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &S3Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		bucket:     c.Bucket,
		presignTTL: ttl,
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(key))
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return nil
}

// URL returns a presigned GET URL for key.
func (s *S3Store) URL(ctx context.Context, key string) (string, error) {
	presigned, err := s.presigner.PresignGetObject(ctx,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		},
		func(po *s3.PresignOptions) {
			po.Expires = s.presignTTL
		},
	)
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return presigned.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return nil
}
