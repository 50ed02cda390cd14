package ports

import (
	"context"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// LineageRecorder appends lineage events for a job.
type LineageRecorder interface {
	RecordEvent(ctx context.Context, jobID string, eventType model.EventType, metadata model.Metadata) (*model.LineageEvent, error)
	// RecordTransformation stores the rule list plus input and output snapshots with their diff.
	RecordTransformation(ctx context.Context, jobID string, rules []model.RuleType, input, output *model.TableProfile) (*model.LineageEvent, error)
}
