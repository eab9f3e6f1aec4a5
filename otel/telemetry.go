package otel

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	traceNoop "go.opentelemetry.io/otel/trace/noop"
)

const scopeName = "github.com/hugolhafner/go-bulkload"

// Telemetry holds all OpenTelemetry instruments for the loader
// When no providers are configured, all instruments are noops with zero overhead
type Telemetry struct {
	Tracer     trace.Tracer
	Propagator propagation.TextMapPropagator

	// Source metrics
	RecordsRead    metric.Int64Counter
	RecordsSkipped metric.Int64Counter

	// Write metrics
	RecordsCommitted metric.Int64Counter
	RecordsFailed    metric.Int64Counter
	BytesWritten     metric.Int64Counter
	WriteDuration    metric.Float64Histogram
	WriteAttempts    metric.Int64Counter

	// Error metrics
	Errors              metric.Int64Counter
	ErrorHandlerActions metric.Int64Counter

	// Pipeline state metrics
	BatchesInFlight metric.Int64UpDownCounter
}

// NewTelemetry creates a Telemetry instance from the given providers.
// all providers are optional and defaulted to noops if nil
func NewTelemetry(tp trace.TracerProvider, mp metric.MeterProvider, prop propagation.TextMapPropagator) (
	*Telemetry, error,
) {
	if tp == nil {
		tp = traceNoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}

	tracer := tp.Tracer(scopeName)
	meter := mp.Meter(scopeName)

	recordsRead, err := meter.Int64Counter(
		"bulkload.records.read",
		metric.WithDescription("Records pulled from the source"),
	)
	if err != nil {
		return nil, err
	}

	recordsSkipped, err := meter.Int64Counter(
		"bulkload.records.skipped",
		metric.WithDescription("Malformed source rows dropped"),
	)
	if err != nil {
		return nil, err
	}

	recordsCommitted, err := meter.Int64Counter(
		"bulkload.records.committed",
		metric.WithDescription("Records acknowledged by the store"),
	)
	if err != nil {
		return nil, err
	}

	recordsFailed, err := meter.Int64Counter(
		"bulkload.records.failed",
		metric.WithDescription("Records that were never committed"),
	)
	if err != nil {
		return nil, err
	}

	bytesWritten, err := meter.Int64Counter(
		"bulkload.bytes.written",
		metric.WithDescription("Key and value bytes acknowledged by the store"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	writeDuration, err := meter.Float64Histogram(
		"bulkload.write.duration",
		metric.WithDescription("Time per store PutBatch() call"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	writeAttempts, err := meter.Int64Counter(
		"bulkload.write.attempts",
		metric.WithDescription("Store write attempts"),
	)
	if err != nil {
		return nil, err
	}

	errors, err := meter.Int64Counter(
		"bulkload.errors",
		metric.WithDescription("Write errors encountered"),
	)
	if err != nil {
		return nil, err
	}

	errorHandlerActions, err := meter.Int64Counter(
		"bulkload.error_handler.actions",
		metric.WithDescription("Error handler decisions"),
	)
	if err != nil {
		return nil, err
	}

	batchesInFlight, err := meter.Int64UpDownCounter(
		"bulkload.batches.in_flight",
		metric.WithDescription("Batches currently being written"),
	)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Tracer:              tracer,
		Propagator:          prop,
		RecordsRead:         recordsRead,
		RecordsSkipped:      recordsSkipped,
		RecordsCommitted:    recordsCommitted,
		RecordsFailed:       recordsFailed,
		BytesWritten:        bytesWritten,
		WriteDuration:       writeDuration,
		WriteAttempts:       writeAttempts,
		Errors:              errors,
		ErrorHandlerActions: errorHandlerActions,
		BatchesInFlight:     batchesInFlight,
	}, nil
}

// Noop returns a Telemetry instance with all noop instruments
func Noop() *Telemetry {
	t, _ := NewTelemetry(nil, nil, nil)
	return t
}
