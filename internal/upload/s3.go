package upload

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/zsiec/reel/internal/config"
)

// PutObjectAPI is the part of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Service stores files as objects under {Prefix}/{name}.
type S3Service struct {
	client PutObjectAPI
	bucket string
	prefix string
}

// NewS3Service loads the default AWS credential chain. A custom endpoint
// switches to path-style addressing for S3-compatible stores.
func NewS3Service(ctx context.Context, cfg config.S3UploadConfig) (*S3Service, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3ServiceWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewS3ServiceWithClient(client PutObjectAPI, bucket, prefix string) *S3Service {
	return &S3Service{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Service) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

func (s *S3Service) UploadFile(ctx context.Context, file File) error {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(file.Name)),
		Body:          bytes.NewReader(file.Payload),
		ContentLength: aws.Int64(int64(len(file.Payload))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key(file.Name), err)
	}
	return nil
}
