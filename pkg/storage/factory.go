package storage

import (
	"context"
	"fmt"

	"github.com/rastion/rastion-datasets/pkg/config"
)

// New selects the blob backend named by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Driver {
	case "", config.StorageDriverLocal:
		return NewLocalStorage(cfg.LocalDir)
	case config.StorageDriverS3:
		client, err := NewS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return NewS3Storage(client, cfg.S3.Bucket, cfg.S3.Prefix)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
