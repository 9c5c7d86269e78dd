//go:build gcp

package report

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSSink mirrors documents to a Google Cloud Storage bucket.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

type GCSSinkConfig struct {
	Bucket string
	Prefix string
}

// NewGCSSink creates a sink using application default credentials.
func NewGCSSink(ctx context.Context, cfg GCSSinkConfig) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSSink) Put(ctx context.Context, campaignID, category string, value any) error {
	data, err := Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", campaignID, category, err)
	}
	key := ObjectKey(s.prefix, campaignID, category)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = "application/json; charset=utf-8"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write failed for %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs close failed for %s: %w", key, err)
	}
	return nil
}

func (s *GCSSink) Close() error {
	return s.client.Close()
}
