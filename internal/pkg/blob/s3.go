package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/papergrade/core/internal/config"
)

// objectAPI is the subset of the S3 client used here.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3 stores objects in an S3-compatible bucket.
type S3 struct {
	client       objectAPI
	bucket       string
	prefix       string
	customDomain string
}

func NewS3(_ context.Context, opts config.S3Options) (*S3, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	accessKey := strings.TrimSpace(opts.AccessKeyID)
	secretKey := strings.TrimSpace(opts.SecretAccessKey)
	if bucket == "" || accessKey == "" || secretKey == "" {
		return nil, errors.New("incomplete s3 config: bucket/access_key_id/secret_access_key are required")
	}
	region := strings.TrimSpace(opts.Region)
	if region == "" {
		region = "auto"
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/")
	if endpoint != "" {
		if parsed, err := url.Parse(endpoint); err != nil || parsed.Host == "" {
			return nil, fmt.Errorf("invalid s3 endpoint: %s", endpoint)
		}
	}
	// Custom endpoints (MinIO, R2) use path-style addressing.
	pathStyle := opts.PathStyleAccess || endpoint != ""

	awsCfg := aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})

	return &S3{
		client:       client,
		bucket:       bucket,
		prefix:       normalizeKey(opts.Prefix),
		customDomain: strings.TrimRight(strings.TrimSpace(opts.CustomDomain), "/"),
	}, nil
}

func (s *S3) Driver() string { return "s3" }

func (s *S3) objectKey(key string) string {
	key = normalizeKey(key)
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key = normalizeKey(key)
	if key == "" {
		return "", errors.New("empty object key")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %q: %w", key, err)
	}
	return key, nil
}

func (s *S3) Delete(ctx context.Context, ref string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %q: %w", ref, err)
	}
	return nil
}

// PublicURL returns the custom-domain URL for ref, or "" when none is configured.
func (s *S3) PublicURL(ref string) string {
	if s.customDomain == "" {
		return ""
	}
	return s.customDomain + "/" + s.objectKey(ref)
}
