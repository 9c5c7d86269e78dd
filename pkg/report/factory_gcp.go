//go:build gcp

package report

import (
	"context"

	"github.com/Mindburn-Labs/briefcheck/pkg/config"
)

func newGCSSinkFromConfig(ctx context.Context, cfg config.GCSConfig) (Sink, error) {
	return NewGCSSink(ctx, GCSSinkConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
}
