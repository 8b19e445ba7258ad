package observability

import (
	"context"
	"time"

	"exbuddy/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter provider. A zero value is
// usable and records nothing.
type Observability struct {
	meterProvider *metric.MeterProvider
	callCounter   otelmetric.Int64Counter
	callDuration  otelmetric.Float64Histogram
	jobDuration   otelmetric.Float64Histogram
}

func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("Failed to create Prometheus exporter, otel metrics disabled", map[string]interface{}{
			"error": err.Error(),
		})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	callCounter, _ := meter.Int64Counter(
		"procedure.calls",
		otelmetric.WithDescription("Number of procedure calls"),
	)
	callDuration, _ := meter.Float64Histogram(
		"procedure.duration",
		otelmetric.WithDescription("Procedure call duration"),
		otelmetric.WithUnit("ms"),
	)
	jobDuration, _ := meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		callCounter:   callCounter,
		callDuration:  callDuration,
		jobDuration:   jobDuration,
	}
}

// RecordCall records one procedure call with its visibility and result code.
func (o *Observability) RecordCall(ctx context.Context, path, visibility, code string, d time.Duration) {
	if o == nil || o.callCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("path", path),
		attribute.String("visibility", visibility),
		attribute.String("code", code),
	)
	o.callCounter.Add(ctx, 1, attrs)
	o.callDuration.Record(ctx, float64(d.Milliseconds()), attrs)
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, d time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(d.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	return o.meterProvider.Shutdown(ctx)
}
