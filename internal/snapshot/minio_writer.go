package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds object storage connection settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioWriter stores snapshots in an S3-compatible bucket. Save returns
// the object URL rather than a filesystem path.
type MinioWriter struct {
	client *minio.Client
	bucket string
	useSSL bool
}

// NewMinioWriter connects to the object store and ensures the bucket
// exists.
func NewMinioWriter(cfg MinioConfig) (*MinioWriter, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio credentials not configured")
	}

	cli, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cli.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
		exists, existsErr := cli.BucketExists(ctx, cfg.Bucket)
		if existsErr != nil || !exists {
			return nil, fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
	}

	log.Printf("[Snapshot] Connected to object store %s, bucket=%s", cfg.Endpoint, cfg.Bucket)
	return &MinioWriter{client: cli, bucket: cfg.Bucket, useSSL: cfg.UseSSL}, nil
}

// Save uploads the snapshot and returns its object URL.
func (w *MinioWriter) Save(filename string, jpeg []byte) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := w.client.PutObject(ctx, w.bucket, filename, bytes.NewReader(jpeg), int64(len(jpeg)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return "", fmt.Errorf("uploading snapshot: %w", err)
	}

	scheme := "http"
	if w.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, w.client.EndpointURL().Host, w.bucket, filename), nil
}
