package usecase

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
)

// Module is the Fx module for the ingestor, launcher, operator and explorer.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewDefaultJobIngestor,
		fx.As(new(JobIngestor)),
	)),
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(JobExplorer)),
	)),
	// The launcher runs the jobs approved through the workflow engine.
	fx.Provide(fx.Annotate(
		NewSimpleJobLauncher,
		fx.As(new(JobLauncher)),
		fx.As(new(ports.JobExecutor)),
	)),
	// The operator creates the retries of the automatic sweep.
	fx.Provide(fx.Annotate(
		NewDefaultJobOperator,
		fx.As(new(JobOperator)),
		fx.As(new(ports.JobRetrier)),
	)),
)
