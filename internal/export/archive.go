package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archived describes an export stored in the bucket.
type Archived struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
	LinkTTL   time.Duration
}

// MinioArchiver uploads export results to an S3-compatible bucket and hands
// back a presigned download link.
type MinioArchiver struct {
	client  *minio.Client
	bucket  string
	linkTTL time.Duration
	now     func() time.Time
}

func NewMinioArchiver(ctx context.Context, cfg ArchiveConfig) (*MinioArchiver, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = time.Hour
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioArchiver{client: client, bucket: cfg.Bucket, linkTTL: cfg.LinkTTL, now: time.Now}, nil
}

// Archive stores result under roadmaps/<id>/ with a timestamped name.
func (a *MinioArchiver) Archive(ctx context.Context, roadmapID string, result *Result) (Archived, error) {
	now := a.now().UTC()
	key := path.Join("roadmaps", roadmapID, now.Format("20060102T150405Z")+"-"+result.Filename)

	_, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return Archived{}, fmt.Errorf("upload export: %w", err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	link, err := a.client.PresignedGetObject(ctx, a.bucket, key, a.linkTTL, params)
	if err != nil {
		return Archived{}, fmt.Errorf("presign export: %w", err)
	}

	return Archived{Key: key, URL: link.String(), ExpiresAt: now.Add(a.linkTTL)}, nil
}
