package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/document"
)

// Archiver exports archived document snapshots to a MinIO bucket.
type Archiver struct {
	client *minio.Client
	bucket string
}

// NewArchiver creates a MinIO client and ensures the bucket exists.
func NewArchiver(ctx context.Context, cfg *MinIOConfig) (*Archiver, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	a := &Archiver{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		// already exists is fine
		exist, xerr := mc.BucketExists(ctx, a.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return a, nil
}

// ObjectKey is where a document snapshot is stored.
func ObjectKey(d *document.Document) string {
	return "documents/" + d.OwnerID + "/" + d.ID + ".json"
}

// Archive uploads d as JSON and returns its object key.
func (a *Archiver) Archive(ctx context.Context, d *document.Document) (string, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	key := ObjectKey(d)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", fmt.Errorf("archive upload: %w", err)
	}
	return key, nil
}

// Remove deletes an archived snapshot.
func (a *Archiver) Remove(ctx context.Context, key string) error {
	if err := a.client.RemoveObject(ctx, a.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("archive remove: %w", err)
	}
	return nil
}

// PresignedURL returns a time-limited GET URL for an archived snapshot.
func (a *Archiver) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	u, err := a.client.PresignedGetObject(ctx, a.bucket, key, expires, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
