package fetch

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mkrishnan-dev/datasync/internal/logging"
)

// BucketConfig locates the S3-compatible bucket uploads go to.
type BucketConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Upload stores each file in the bucket under its base name, creating
// the bucket when it does not exist.
func Upload(ctx context.Context, cfg BucketConfig, files []string) error {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return fmt.Errorf("upload requires both endpoint and bucket")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("creating object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket %s: %w", cfg.Bucket, err)
		}
		logging.Info("Created bucket %s", cfg.Bucket)
	}

	for _, path := range files {
		object := filepath.Base(path)
		info, err := client.FPutObject(ctx, cfg.Bucket, object, path,
			minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			return fmt.Errorf("uploading %s: %w", object, err)
		}
		logging.Info("Uploaded %s (%d bytes)", object, info.Size)
	}
	return nil
}
