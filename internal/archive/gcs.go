package archive

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCS implements Provider on a Google Cloud Storage bucket. Authentication
// uses Application Default Credentials.
type GCS struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewGCS opens a client and verifies bucket access so misconfiguration fails
// at startup instead of at the end of the first run.
func NewGCS(ctx context.Context, bucket string, logger *zap.Logger) (*GCS, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close gcs client after failed bucket check", zap.Error(cerr))
		}
		return nil, fmt.Errorf("check gcs bucket %q: %w", bucket, err)
	}
	return &GCS{client: client, bucket: bucket, logger: logger}, nil
}

func (g *GCS) Save(ctx context.Context, objectName string, data []byte) error {
	w := g.client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		if cerr := w.Close(); cerr != nil {
			g.logger.Warn("close gcs writer after failed write", zap.Error(cerr))
		}
		return fmt.Errorf("write gcs object %s: %w", objectName, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gcs object %s: %w", objectName, err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
