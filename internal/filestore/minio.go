package filestore

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

const (
	filenameMetaKey = "Original-Filename"
	uploaderMetaKey = "Uploaded-By"
)

// MinioConfig locates the bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps attachments in an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects and creates the bucket when missing.
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create minio client")
	}
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "create bucket %s", cfg.Bucket)
		}
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Store uploads data under a fresh key.
func (s *MinioStore) Store(ctx context.Context, data []byte, meta Metadata) (Object, error) {
	obj := Object{
		Key:         NewKey(meta.Filename),
		Filename:    CleanFilename(meta.Filename),
		ContentType: DetectContentType(data),
		SizeBytes:   int64(len(data)),
		UploadedBy:  meta.UploadedBy,
	}
	_, err := s.client.PutObject(ctx, s.bucket, obj.Key, bytes.NewReader(data), obj.SizeBytes, minio.PutObjectOptions{
		ContentType: obj.ContentType,
		UserMetadata: map[string]string{
			filenameMetaKey: obj.Filename,
			uploaderMetaKey: meta.UploadedBy,
		},
	})
	if err != nil {
		return Object{}, errors.Wrapf(err, "put object %s", obj.Key)
	}
	return obj, nil
}

// Retrieve downloads an object with its metadata.
func (s *MinioStore) Retrieve(ctx context.Context, key string) ([]byte, Object, error) {
	reader, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, translateError(err, key)
	}
	defer func() {
		_ = reader.Close()
	}()

	stat, err := reader.Stat()
	if err != nil {
		return nil, Object{}, translateError(err, key)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, Object{}, translateError(err, key)
	}
	return data, objectFromInfo(key, stat), nil
}

// Stat reads object metadata without downloading the content.
func (s *MinioStore) Stat(ctx context.Context, key string) (Object, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return Object{}, translateError(err, key)
	}
	return objectFromInfo(key, info), nil
}

func objectFromInfo(key string, info minio.ObjectInfo) Object {
	return Object{
		Key:         key,
		Filename:    info.UserMetadata[filenameMetaKey],
		ContentType: info.ContentType,
		SizeBytes:   info.Size,
		UploadedBy:  info.UserMetadata[uploaderMetaKey],
	}
}

// Ping checks that the bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return errors.Wrap(err, "ping minio")
}

func translateError(err error, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return errors.Wrapf(err, "get object %s", key)
}
