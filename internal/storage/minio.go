package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"ingest/internal/config"
)

// minioAccess is the part of *minio.Client the store uses. GetObject
// returns an io.ReadCloser rather than *minio.Object so tests can fake it.
type minioAccess interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

type minioClient struct {
	ref *minio.Client
}

func (c *minioClient) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	return c.ref.GetObject(ctx, bucketName, objectName, opts)
}

func (c *minioClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return c.ref.PutObject(ctx, bucketName, objectName, reader, objectSize, opts)
}

func (c *minioClient) BucketExists(ctx context.Context, bucketName string) (bool, error) {
	return c.ref.BucketExists(ctx, bucketName)
}

// MinioStore talks to any S3-compatible server through minio-go.
type MinioStore struct {
	client minioAccess
}

func NewMinioStore(cfg config.MinioConfig) (*MinioStore, error) {
	ref, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: !cfg.Insecure,
	})
	if err != nil {
		return nil, err
	}
	return &MinioStore{client: &minioClient{ref: ref}}, nil
}

func (s *MinioStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.classify("get", bucket, key, err)
	}
	defer obj.Close()

	// minio defers the request until the first read, so most errors
	// surface here.
	body, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.classify("get", bucket, key, err)
	}
	return body, nil
}

func (s *MinioStore) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return storageIOError("put", bucket, key, err)
	}
	return nil
}

func (s *MinioStore) CheckBucket(ctx context.Context, bucket string) error {
	ok, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if !ok {
		return minio.ErrorResponse{Code: "NoSuchBucket", BucketName: bucket, Message: "bucket does not exist"}
	}
	return nil
}

func (s *MinioStore) classify(op, bucket, key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return notFoundError(bucket, key, err)
	}
	return storageIOError(op, bucket, key, err)
}
