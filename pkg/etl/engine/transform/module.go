package transform

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/application/command"
)

// Module provides the Engine and registers it as the correction handler.
var Module = fx.Options(
	fx.Provide(NewEngine),
	fx.Invoke(func(bus *command.CorrectionBus, e *Engine) {
		bus.Register(e)
	}),
)
