package r2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	conf "github.com/trunov/thumbnailer/internal/config"
	"github.com/trunov/thumbnailer/internal/logger"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidKey = errors.New("invalid blob key")
)

const maxRetries = 3

// S3 stores workspace blobs in one bucket, each workspace under its own prefix.
type S3 struct {
	Bucket string

	S3Client *s3.Client
	Uploader *manager.Uploader

	log *slog.Logger
}

func NewStorage(ctx context.Context, cfg *conf.StorageConfig, log *slog.Logger) (*S3, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretKey, "",
		)),
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(maxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	s := &S3{
		Bucket:   cfg.BucketName,
		S3Client: client,
		Uploader: manager.NewUploader(client),
		log:      log.With(logger.Scope("blob-store")),
	}
	s.log.Info("blob storage client initialized",
		slog.String("bucket", s.Bucket),
		slog.String("endpoint", endpoint))
	return s, nil
}

// objectKey places key under the workspace prefix. Keys are used verbatim, so
// anything that could climb out of the prefix is refused.
func objectKey(workspace, key string) (string, error) {
	if workspace == "" || strings.Contains(workspace, "/") || workspace == "." || workspace == ".." {
		return "", fmt.Errorf("%w: workspace %q", ErrInvalidKey, workspace)
	}
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return workspace + "/" + key, nil
}

// Get streams the blob. The caller closes the reader.
func (s *S3) Get(ctx context.Context, workspace, key string) (io.ReadCloser, error) {
	k, err := objectKey(workspace, key)
	if err != nil {
		return nil, err
	}

	out, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(k),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("failed to download %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to download %q: %w", key, err)
	}
	return out.Body, nil
}

// Put uploads body under key. A negative size means unknown.
func (s *S3) Put(ctx context.Context, workspace, key string, body io.Reader, contentType string, size int64) error {
	k, err := objectKey(workspace, key)
	if err != nil {
		return err
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(k),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}

	if _, err := s.Uploader.Upload(ctx, in); err != nil {
		return fmt.Errorf("failed to upload %q: %w", key, err)
	}
	return nil
}

func (s *S3) Remove(ctx context.Context, workspace string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for _, key := range keys {
		k, err := objectKey(workspace, key)
		if err != nil {
			return err
		}
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(k)})
	}

	out, err := s.S3Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(s.Bucket),
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return fmt.Errorf("failed to remove %d blobs: %w", len(keys), err)
	}

	var errs []error
	for _, e := range out.Errors {
		errs = append(errs, fmt.Errorf("remove %q: %s", aws.ToString(e.Key), aws.ToString(e.Message)))
	}
	return errors.Join(errs...)
}
