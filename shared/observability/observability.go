package observability

import (
	"context"
	"net/http"

	"zapgpt/backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// SetupTracing initializes OpenTelemetry tracing with a stdout exporter
// (replace with OTLP in production). Returns a shutdown function.
func SetupTracing(serviceName string, log *logger.Logger) func() {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Error("failed to initialize trace exporter", "error", err.Error())
		return func() {}
	}

	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return func() { _ = provider.Shutdown(context.Background()) }
}

// SetupMetrics initializes the Prometheus exporter and serves /metrics
// on the given port.
func SetupMetrics(port string, log *logger.Logger) *sdkmetric.MeterProvider {
	exp, err := prometheus.New()
	if err != nil {
		log.Error("failed to initialize prometheus exporter", "error", err.Error())
		return nil
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(mp)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			log.Error("metrics server stopped", "error", err.Error())
		}
	}()

	return mp
}

// EngineMetrics are the counters emitted by the message orchestration
// engine.
type EngineMetrics struct {
	TurnsProcessed  metric.Int64Counter
	TurnsFailed     metric.Int64Counter
	ProviderRetries metric.Int64Counter
	ChunksSent      metric.Int64Counter
}

// NewEngineMetrics registers the engine counters on the global meter.
func NewEngineMetrics() *EngineMetrics {
	meter := otel.Meter("zapgpt/engine")

	turns, _ := meter.Int64Counter("zapgpt_turns_processed_total",
		metric.WithDescription("Conversation turns fully processed"))
	failed, _ := meter.Int64Counter("zapgpt_turns_failed_total",
		metric.WithDescription("Turns answered with the apology fallback"))
	retries, _ := meter.Int64Counter("zapgpt_provider_retries_total",
		metric.WithDescription("AI provider call retries"))
	chunks, _ := meter.Int64Counter("zapgpt_chunks_sent_total",
		metric.WithDescription("Outbound WhatsApp message chunks"))

	return &EngineMetrics{
		TurnsProcessed:  turns,
		TurnsFailed:     failed,
		ProviderRetries: retries,
		ChunksSent:      chunks,
	}
}

// Add is a nil-safe counter increment helper.
func Add(ctx context.Context, counter metric.Int64Counter, n int64) {
	if counter != nil {
		counter.Add(ctx, n)
	}
}
