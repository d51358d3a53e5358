// Package storage defines where the ingestion server keeps accepted submissions.
package storage

import (
	"context"

	"github.com/and161185/toolkit-telemetry/model"
)

// Storage persists accepted telemetry requests.
type Storage interface {
	SaveMetrics(ctx context.Context, req *model.PostMetricsRequest) error
	SaveFeedback(ctx context.Context, req *model.PostFeedbackRequest) error
	Ping(ctx context.Context) error
	Close()
}
