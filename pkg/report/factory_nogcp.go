//go:build !gcp

package report

import (
	"context"
	"fmt"

	"github.com/Mindburn-Labs/briefcheck/pkg/config"
)

func newGCSSinkFromConfig(_ context.Context, _ config.GCSConfig) (Sink, error) {
	return nil, fmt.Errorf("GCS mirroring is not enabled in this build (use -tags gcp)")
}
