package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-etl/pkg/etl/listener/logging"
	"github.com/tigerroll/surfin-etl/pkg/etl/listener/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/listener/notification"
	"github.com/tigerroll/surfin-etl/pkg/etl/listener/tracing"
)

// Module aggregates all job listeners.
var Module = fx.Options(
	logging.Module,
	metrics.Module,
	tracing.Module,
	notification.Module,
)
