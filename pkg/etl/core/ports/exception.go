package ports

import (
	"context"

	model "github.com/tigerroll/surfin-etl/pkg/etl/core/domain/model"
)

// ExceptionReporter records job-scoped data exceptions.
type ExceptionReporter interface {
	Report(ctx context.Context, jobID, exceptionType, message string, severity model.Severity, metadata model.Metadata) (*model.DataException, error)
}
