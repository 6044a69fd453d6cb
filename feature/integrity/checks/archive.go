package checks

import (
	"context"
	"fmt"

	"fileno-manager/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// CheckArchive reports whether the report bucket exists.
func CheckArchive(ctx context.Context, client storage.Client, bucket string) (bool, error) {
	if bucket == "" {
		return false, fmt.Errorf("no archive bucket configured")
	}
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	return exists, nil
}

// FixArchive creates the report bucket.
func FixArchive(ctx context.Context, client storage.Client, bucket string, logger *zap.Logger) error {
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		logger.Error("Failed to create bucket", zap.String("bucket", bucket), zap.Error(err))
		return err
	}
	logger.Info("Created missing bucket", zap.String("bucket", bucket))
	return nil
}
