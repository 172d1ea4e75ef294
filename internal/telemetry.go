package internal

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Lightweight telemetry hook layer. Callers register an emitter (the
// OpenTelemetry one below, or a test stub); the default is a no-op.

type telemetryEmitter func(ctx context.Context, name string, labels map[string]string, value any)

const (
	metricCompileLatency   = "restmodel_compile_latency_ms"
	metricPickerSelection  = "restmodel_picker_selection_total"
	metricGeneratorLatency = "restmodel_generator_latency_ms"
	metricCacheLookup      = "restmodel_schema_cache_lookup_total"
)

var (
	teleMu   sync.Mutex
	teleImpl telemetryEmitter = func(ctx context.Context, name string, labels map[string]string, value any) {}
)

// RegisterTelemetryEmitter registers a custom emitter function. Passing nil
// restores the no-op emitter.
func RegisterTelemetryEmitter(fn telemetryEmitter) {
	teleMu.Lock()
	defer teleMu.Unlock()
	if fn == nil {
		teleImpl = func(ctx context.Context, name string, labels map[string]string, value any) {}
		return
	}
	teleImpl = fn
}

func emit(ctx context.Context, name string, labels map[string]string, value any) {
	teleMu.Lock()
	fn := teleImpl
	teleMu.Unlock()
	fn(ctx, name, labels, value)
}

// EmitCompileLatency records how long a schema compilation took.
func EmitCompileLatency(ctx context.Context, cached bool, ms int64) {
	source := "compiler"
	if cached {
		source = "cache"
	}
	emit(ctx, metricCompileLatency, map[string]string{"source": source}, ms)
}

// EmitPickerSelection counts mock requests by whether a picker matched.
func EmitPickerSelection(ctx context.Context, matched bool) {
	result := "fallback"
	if matched {
		result = "picker"
	}
	emit(ctx, metricPickerSelection, map[string]string{"result": result}, int64(1))
}

// EmitGeneratorLatency records a generator call and its outcome.
func EmitGeneratorLatency(ctx context.Context, mode string, ok bool, ms int64) {
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	emit(ctx, metricGeneratorLatency, map[string]string{"mode": mode, "outcome": outcome}, ms)
}

// EmitCacheLookup counts schema cache hits and misses.
func EmitCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	emit(ctx, metricCacheLookup, map[string]string{"result": result}, int64(1))
}

// NewOTelEmitter returns an emitter recording latencies as histograms and
// everything else as counters on the global meter provider.
func NewOTelEmitter(meterName string) telemetryEmitter {
	meter := otel.Meter(meterName)
	var (
		mu         sync.Mutex
		histograms = map[string]metric.Int64Histogram{}
		counters   = map[string]metric.Int64Counter{}
	)

	return func(ctx context.Context, name string, labels map[string]string, value any) {
		n, ok := value.(int64)
		if !ok {
			return
		}
		attrs := make([]attribute.KeyValue, 0, len(labels))
		for k, v := range labels {
			attrs = append(attrs, attribute.String(k, v))
		}
		opt := metric.WithAttributes(attrs...)

		mu.Lock()
		defer mu.Unlock()
		switch name {
		case metricCompileLatency, metricGeneratorLatency:
			h, ok := histograms[name]
			if !ok {
				var err error
				h, err = meter.Int64Histogram(name, metric.WithUnit("ms"))
				if err != nil {
					zap.S().Warnw("create histogram", "name", name, "error", err)
					return
				}
				histograms[name] = h
			}
			h.Record(ctx, n, opt)
		default:
			c, ok := counters[name]
			if !ok {
				var err error
				c, err = meter.Int64Counter(name)
				if err != nil {
					zap.S().Warnw("create counter", "name", name, "error", err)
					return
				}
				counters[name] = c
			}
			c.Add(ctx, n, opt)
		}
	}
}
