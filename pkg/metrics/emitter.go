package metrics

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Emitter publishes run-end score batches to the OpenTelemetry meter
// backed by the Prometheus exporter. A zero Emitter is a no-op, which is
// what a disabled metrics config produces.
type Emitter struct {
	runDuration    metric.Float64Histogram
	runsTotal      metric.Int64Counter
	runTokens      metric.Int64Counter
	apiCallsTotal  metric.Int64Counter
	diversityScore metric.Float64Histogram
}

// InitEmitter wires the Prometheus exporter into an SDK meter provider
// and creates the run-level instruments. The exporter registers with the
// default Prometheus registry served at /metrics.
func InitEmitter(enabled bool) (*Emitter, error) {
	if !enabled {
		return &Emitter{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)
	meter := meterProvider.Meter("scout")

	runDuration, err := meter.Float64Histogram(
		"scout_run_phase_duration_seconds",
		metric.WithDescription("Research run phase duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create phase duration histogram: %w", err)
	}
	runsTotal, err := meter.Int64Counter(
		"scout_runs_total",
		metric.WithDescription("Total research runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}
	runTokens, err := meter.Int64Counter(
		"scout_run_tokens_total",
		metric.WithDescription("Total LLM tokens used by research runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokens counter: %w", err)
	}
	apiCallsTotal, err := meter.Int64Counter(
		"scout_api_calls_total",
		metric.WithDescription("Total provider API calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create api calls counter: %w", err)
	}
	diversityScore, err := meter.Float64Histogram(
		"scout_source_diversity_score",
		metric.WithDescription("Evidence source diversity score per run"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create diversity histogram: %w", err)
	}

	return &Emitter{
		runDuration:    runDuration,
		runsTotal:      runsTotal,
		runTokens:      runTokens,
		apiCallsTotal:  apiCallsTotal,
		diversityScore: diversityScore,
	}, nil
}

// RecordScores emits one run's metrics batch, tagged with the strategy
// slug and tools used. traceID is accepted for log correlation by the
// caller; it is too high-cardinality to attach as a metric attribute.
func (e *Emitter) RecordScores(ctx context.Context, traceID string, m *StrategyMetrics) {
	if e == nil || e.runsTotal == nil || m == nil {
		return
	}
	_ = traceID

	attrs := []attribute.KeyValue{
		attribute.String("strategy_slug", m.StrategySlug),
		attribute.String("tools_used", strings.Join(m.ToolsUsed, ",")),
	}

	e.runsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.TotalTokens > 0 {
		e.runTokens.Add(ctx, int64(m.TotalTokens), metric.WithAttributes(attrs...))
	}
	e.diversityScore.Record(ctx, m.SourceDiversityScore, metric.WithAttributes(attrs...))

	for phase, pm := range m.Phases {
		e.runDuration.Record(ctx, pm.Duration.Seconds(),
			metric.WithAttributes(append(attrs, attribute.String("phase", phase))...))
	}
	for tool, count := range m.APICalls {
		e.apiCallsTotal.Add(ctx, int64(count),
			metric.WithAttributes(attribute.String("tool", tool)))
	}
}
