package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Sink stores a finished export and returns where it went.
type Sink interface {
	Put(ctx context.Context, name, contentType string, body []byte) (string, error)
}

// DirSink writes exports into a local directory.
type DirSink struct {
	Dir string
}

// Put writes body to Dir/name through a temp file so a partially written
// export is never visible under its final name.
func (s DirSink) Put(_ context.Context, name, _ string, body []byte) (string, error) {
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close export: %w", err)
	}
	dst := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("rename export: %w", err)
	}
	return dst, nil
}

// WriterSink streams exports to a writer, typically stdout.
type WriterSink struct {
	W io.Writer
}

func (s WriterSink) Put(_ context.Context, _, _ string, body []byte) (string, error) {
	if _, err := s.W.Write(body); err != nil {
		return "", err
	}
	return "-", nil
}

// S3Config locates the bucket exports are uploaded to. Endpoint is set for
// S3-compatible stores (MinIO, localstack) and switches to path-style
// addressing.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads exports to a bucket under Prefix with a UTC timestamp in
// the key.
type S3Sink struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Sink builds an S3 client from the default AWS credential chain, or
// from static keys when both are set.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 export: bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3SinkFromClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3SinkFromClient wraps an existing client.
func NewS3SinkFromClient(client *s3.Client, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

// Put uploads body and returns its s3:// URI.
func (s *S3Sink) Put(ctx context.Context, name, contentType string, body []byte) (string, error) {
	key := stamped(name, s.now())
	if s.prefix != "" {
		key = path.Join(s.prefix, key)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3://%s/%s: %w", s.bucket, key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}
