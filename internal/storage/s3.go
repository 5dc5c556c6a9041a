package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	PublicBaseURL  string
	ForcePathStyle bool
}

// S3 stores media in a bucket. Locators are PublicBaseURL/key when a public
// base is configured, otherwise s3://bucket/key.
type S3 struct {
	client     s3API
	bucket     string
	publicBase string
}

func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle || cfg.Endpoint != ""
	})
	return newS3(client, cfg.Bucket, cfg.PublicBaseURL), nil
}

func newS3(client s3API, bucket, publicBase string) *S3 {
	return &S3{client: client, bucket: bucket, publicBase: strings.TrimRight(publicBase, "/")}
}

func (s *S3) Put(ctx context.Context, folder string, data []byte, mimeType string) (string, error) {
	key := newKey(folder, mimeType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mimeType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return s.locator(key), nil
}

func (s *S3) Get(ctx context.Context, locator string) ([]byte, error) {
	key, err := s.keyFor(locator)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		var nk *types.NoSuchKey
		if errors.As(err, &nk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3) Delete(ctx context.Context, locator string) (bool, error) {
	key, err := s.keyFor(locator)
	if err != nil {
		return false, err
	}
	if _, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %s: %w", key, err)
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return false, fmt.Errorf("s3 delete %s: %w", key, err)
	}
	return true, nil
}

func (s *S3) locator(key string) string {
	if s.publicBase != "" {
		return s.publicBase + "/" + key
	}
	return "s3://" + s.bucket + "/" + key
}

func (s *S3) keyFor(locator string) (string, error) {
	var key string
	switch {
	case s.publicBase != "" && strings.HasPrefix(locator, s.publicBase+"/"):
		key = strings.TrimPrefix(locator, s.publicBase+"/")
	case strings.HasPrefix(locator, "s3://"+s.bucket+"/"):
		key = strings.TrimPrefix(locator, "s3://"+s.bucket+"/")
	default:
		return "", fmt.Errorf("locator %q is not in bucket %s", locator, s.bucket)
	}
	if !validKey(key) {
		return "", fmt.Errorf("invalid media locator %q", locator)
	}
	return key, nil
}
