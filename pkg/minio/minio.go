package minio

import (
	"bytes"
	"context"
	"fmt"

	"smallbiznis-rewards/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("minio.client", fx.Provide(NewUploader))

// Uploader stores report objects. A nil *Uploader means object storage is not configured.
type Uploader struct {
	client *minio.Client
	bucket string
}

func NewUploader(c *config.Config) (*Uploader, error) {
	if c.Minio.Endpoint == "" || c.Minio.BucketName == "" {
		zap.L().Info("MinIO not configured, audit reports stay in logs")
		return nil, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(context.Background(), c.Minio.BucketName)
	if err != nil {
		zap.L().Error("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
		return nil, err
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.Bool("bucketExists", exists))

	return &Uploader{client: client, bucket: c.Minio.BucketName}, nil
}

func (u *Uploader) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}
