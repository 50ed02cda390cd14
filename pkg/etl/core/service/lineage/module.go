package lineage

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
)

// Module provides the Tracker as itself and as the ports.LineageRecorder used by the engine.
var Module = fx.Provide(fx.Annotate(
	NewTracker,
	fx.As(fx.Self()),
	fx.As(new(ports.LineageRecorder)),
))
