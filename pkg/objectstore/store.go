package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cuemby/colony/pkg/log"
	"github.com/cuemby/colony/pkg/metrics"
	"github.com/cuemby/colony/pkg/types"
	"github.com/rs/zerolog"
)

// S3API is the subset of the S3 client the store calls.
// *s3.Client satisfies it.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store moves files between the local disk and the system's single bucket.
// Keys are plain file names.
type Store struct {
	client S3API
	bucket string
	logger zerolog.Logger
}

func NewStore(client S3API, bucket string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		logger: log.WithComponent("objectstore"),
	}
}

// Bucket returns the bucket every key lives in
func (s *Store) Bucket() string {
	return s.bucket
}

// Put uploads the file at localPath under key
func (s *Store) Put(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		metrics.ObjectTransfersTotal.WithLabelValues("put", "error").Inc()
		return types.NewError(types.ErrObjectStore, "put "+key, fmt.Errorf("failed to open %s: %w", localPath, err))
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		metrics.ObjectTransfersTotal.WithLabelValues("put", "error").Inc()
		return types.NewError(types.ErrObjectStore, "put "+key, err)
	}

	metrics.ObjectTransfersTotal.WithLabelValues("put", "ok").Inc()
	s.logger.Debug().Str("bucket", s.bucket).Str("key", key).Msg("File uploaded")
	return nil
}

// Get downloads key into localPath, creating parent directories.
// A partially written file is removed on failure.
func (s *Store) Get(ctx context.Context, key, localPath string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		metrics.ObjectTransfersTotal.WithLabelValues("get", "error").Inc()
		return types.NewError(types.ErrObjectStore, "get "+key, err)
	}
	defer out.Body.Close()

	if err := writeFile(localPath, out.Body); err != nil {
		metrics.ObjectTransfersTotal.WithLabelValues("get", "error").Inc()
		return types.NewError(types.ErrObjectStore, "get "+key, err)
	}

	metrics.ObjectTransfersTotal.WithLabelValues("get", "ok").Inc()
	s.logger.Debug().Str("bucket", s.bucket).Str("key", key).Str("path", localPath).Msg("File downloaded")
	return nil
}

// createFile opens the download target; tests swap it to inject close errors
var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := createFile(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
