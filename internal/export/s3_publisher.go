// Package export publishes compiled schema documents to S3 compatible storage.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/lychee-technology/restmodel"
	"go.uber.org/zap"
)

const schemaContentType = "application/schema+json"

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type bucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Publisher uploads documents under a key prefix of one bucket. The bucket
// is created on first use when missing.
type S3Publisher struct {
	uploader uploader
	buckets  bucketAPI
	bucket   string
	prefix   string

	mu      sync.Mutex
	ensured bool
}

// NewS3Publisher builds a publisher from the export settings. Static
// credentials are used when an access key is configured, otherwise the
// default AWS credential chain applies.
func NewS3Publisher(ctx context.Context, cfg restmodel.ExportConfig) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, restmodel.NewValidationError("export.bucket", "is required")
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	if cfg.Endpoint != "" {
		loadOpts = append(loadOpts, config.WithBaseEndpoint(cfg.Endpoint))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newPublisher(manager.NewUploader(client), client, cfg.Bucket, cfg.Prefix), nil
}

func newPublisher(up uploader, buckets bucketAPI, bucket, prefix string) *S3Publisher {
	return &S3Publisher{uploader: up, buckets: buckets, bucket: bucket, prefix: prefix}
}

// Publish uploads the document and returns its s3:// location.
func (p *S3Publisher) Publish(ctx context.Context, key string, document []byte) (string, error) {
	if err := p.ensureBucket(ctx); err != nil {
		return "", err
	}

	objectKey := p.prefix + strings.TrimPrefix(key, "/")
	_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(objectKey),
		Body:        bytes.NewReader(document),
		ContentType: aws.String(schemaContentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload %s: %w", objectKey, err)
	}

	location := fmt.Sprintf("s3://%s/%s", p.bucket, objectKey)
	zap.S().Infow("artifact published", "location", location, "bytes", len(document))
	return location, nil
}

func (p *S3Publisher) ensureBucket(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ensured {
		return nil
	}

	if _, err := p.buckets.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)}); err != nil {
		if _, cerr := p.buckets.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(p.bucket)}); cerr != nil {
			var apiErr smithy.APIError
			if !errors.As(cerr, &apiErr) ||
				(apiErr.ErrorCode() != "BucketAlreadyOwnedByYou" && apiErr.ErrorCode() != "BucketAlreadyExists") {
				return fmt.Errorf("create bucket %s: %w", p.bucket, cerr)
			}
		} else {
			zap.S().Infow("export bucket created", "bucket", p.bucket)
		}
	}
	p.ensured = true
	return nil
}
