package report

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Mindburn-Labs/briefcheck/pkg/config"
)

// Sinks is the set of sinks a run writes to. Files is always present and is
// what the summary reads back; All fans out to Files and any mirrors.
type Sinks struct {
	Files *FileSink
	All   Sink
}

// FromConfig builds the file sink plus the S3 and GCS mirrors that are
// configured.
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Sinks, error) {
	files, err := NewFileSink(cfg.ReportsDir)
	if err != nil {
		return nil, err
	}
	all := MultiSink{files}

	if cfg.S3.Bucket != "" {
		s3Sink, err := NewS3Sink(ctx, S3SinkConfig{
			Bucket:   cfg.S3.Bucket,
			Region:   cfg.S3.Region,
			Endpoint: cfg.S3.Endpoint,
			Prefix:   cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 mirror: %w", err)
		}
		all = append(all, s3Sink)
		logger.Info("mirroring reports to S3", zap.String("bucket", cfg.S3.Bucket))
	}

	if cfg.GCS.Bucket != "" {
		gcsSink, err := newGCSSinkFromConfig(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs mirror: %w", err)
		}
		all = append(all, gcsSink)
		logger.Info("mirroring reports to GCS", zap.String("bucket", cfg.GCS.Bucket))
	}

	if len(all) == 1 {
		return &Sinks{Files: files, All: files}, nil
	}
	return &Sinks{Files: files, All: all}, nil
}
