package ports

import (
	"context"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// CorrectionCommand asks the transformation engine to re-run a job with a single corrective rule.
type CorrectionCommand struct {
	JobID       string
	ExceptionID string
	Suggestion  model.Suggestion
	Rule        model.RuleSpec
}

// CorrectionHandler executes correction commands.
type CorrectionHandler interface {
	HandleCorrection(ctx context.Context, cmd CorrectionCommand) error
}

// CorrectionDispatcher routes a command to the registered handler.
type CorrectionDispatcher interface {
	Dispatch(ctx context.Context, cmd CorrectionCommand) error
}
