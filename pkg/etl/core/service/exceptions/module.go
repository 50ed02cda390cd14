package exceptions

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
)

// Module provides the Reporter as itself and as the ports.ExceptionReporter.
var Module = fx.Provide(fx.Annotate(
	NewReporter,
	fx.As(fx.Self()),
	fx.As(new(ports.ExceptionReporter)),
))
