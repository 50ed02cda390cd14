package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/surfin-etl/pkg/etl/core/config"
	metrics "github.com/tigerroll/surfin-etl/pkg/etl/core/metrics"
	"github.com/tigerroll/surfin-etl/pkg/etl/support/util/logger"
)

// NewMetricRecorder selects the backend from configuration and registers shutdown hooks.
func NewMetricRecorder(lc fx.Lifecycle, cfg *config.Config) (metrics.MetricRecorder, error) {
	mc := cfg.ETL.Metrics
	if !mc.Enabled {
		return metrics.NewNoOpMetricRecorder(), nil
	}

	if mc.Backend == "otel" {
		mp, err := NewMeterProvider(context.Background(), mc, cfg.ETL.Tracing)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: mp.Shutdown})
		return NewOTelMetricRecorder(mp)
	}

	rec := NewPrometheusRecorder()
	if mc.Listen != "" {
		srv := NewMetricsServer(mc.Listen, rec.GetRegistry())
		lc.Append(fx.Hook{OnStart: srv.Start, OnStop: srv.Stop})
	}
	return rec, nil
}

// NewTracer returns an OpenTelemetry tracer when tracing is enabled.
func NewTracer(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tc := cfg.ETL.Tracing
	if !tc.Enabled {
		return metrics.NewNoOpTracer(), nil
	}
	tp, err := NewTracerProvider(context.Background(), tc)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
		logger.Debugf("Flushing trace provider.")
		return tp.Shutdown(ctx)
	}})
	return NewOpenTelemetryTracer(tp), nil
}

// Module provides the configured MetricRecorder and Tracer.
var Module = fx.Options(
	fx.Provide(NewMetricRecorder),
	fx.Provide(NewTracer),
)
