package inmemory

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/domain/repository"
)

// Module provides a single in-memory Store under every repository interface.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewStore,
			fx.As(new(repository.Store)),
			fx.As(new(repository.JobRepository)),
			fx.As(new(repository.SchemaRepository)),
			fx.As(new(repository.LineageRepository)),
			fx.As(new(repository.ExceptionRepository)),
			fx.As(new(repository.ApprovalRepository)),
			fx.As(new(repository.DataSourceRepository)),
		),
	),
)
