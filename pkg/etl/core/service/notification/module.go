package notification

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/core/ports"
)

// Module provides the Dispatcher and the logging notifier as the default ports.Notifier.
var Module = fx.Options(
	fx.Provide(NewDispatcher),
	fx.Provide(fx.Annotate(NewLoggingNotifier, fx.As(new(ports.Notifier)))),
)
