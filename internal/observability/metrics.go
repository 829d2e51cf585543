package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "graphql-sqlfilter"

// Metrics holds the filter translation, nested loader and request instruments.
type Metrics struct {
	translations        metric.Int64Counter
	translationErrors   metric.Int64Counter
	translationDuration metric.Float64Histogram
	batchSize           metric.Int64Histogram
	batchRows           metric.Int64Histogram
	queriesSaved        metric.Int64Counter
	requestDuration     metric.Float64Histogram
	requests            metric.Int64Counter
	activeRequests      metric.Int64UpDownCounter
}

// InitMetrics creates the instruments on the global meter provider.
func InitMetrics(logger *slog.Logger) (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.translations, err = meter.Int64Counter(
		"filter.translations.total",
		metric.WithDescription("Total number of filter trees translated to SQL"),
	); err != nil {
		return nil, fmt.Errorf("failed to create translations counter: %w", err)
	}
	if m.translationErrors, err = meter.Int64Counter(
		"filter.translation.errors.total",
		metric.WithDescription("Total number of filter trees that failed to translate"),
	); err != nil {
		return nil, fmt.Errorf("failed to create translation errors counter: %w", err)
	}
	if m.translationDuration, err = meter.Float64Histogram(
		"filter.translation.duration",
		metric.WithDescription("Duration of filter translation in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create translation duration histogram: %w", err)
	}
	if m.batchSize, err = meter.Int64Histogram(
		"filter.loader.batch.size",
		metric.WithDescription("Number of parent rows resolved by one nested connection query"),
	); err != nil {
		return nil, fmt.Errorf("failed to create loader batch size histogram: %w", err)
	}
	if m.batchRows, err = meter.Int64Histogram(
		"filter.loader.batch.rows",
		metric.WithDescription("Number of rows returned by one nested connection query"),
	); err != nil {
		return nil, fmt.Errorf("failed to create loader batch rows histogram: %w", err)
	}
	if m.queriesSaved, err = meter.Int64Counter(
		"filter.loader.queries.saved",
		metric.WithDescription("Number of queries saved by batching nested connections"),
	); err != nil {
		return nil, fmt.Errorf("failed to create queries saved counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.requests, err = meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if m.activeRequests, err = meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of active GraphQL requests"),
	); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	if logger != nil {
		logger.Info("filter metrics initialized")
	}
	return m, nil
}

// RecordTranslation records one filtering pass of a filter set.
func (m *Metrics) RecordTranslation(ctx context.Context, filterSet string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("filter_set", filterSet),
		attribute.Bool("success", err == nil),
	)
	m.translations.Add(ctx, 1, attrs)
	m.translationDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.translationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("filter_set", filterSet)))
	}
}

// RecordBatch records one nested connection query serving parents parent rows.
func (m *Metrics) RecordBatch(ctx context.Context, relation string, parents, rows int) {
	attrs := metric.WithAttributes(attribute.String("relation", relation))
	m.batchSize.Record(ctx, int64(parents), attrs)
	m.batchRows.Record(ctx, int64(rows), attrs)
	if parents > 1 {
		m.queriesSaved.Add(ctx, int64(parents-1), attrs)
	}
}

// RecordRequest records a GraphQL request with its duration and outcome.
func (m *Metrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	attrs := metric.WithAttributes(
		attribute.Bool("has_errors", hasErrors),
		attribute.String("operation_type", operationType),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requests.Add(ctx, 1, attrs)
}

// IncrementActiveRequests increments the active requests counter.
func (m *Metrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests decrements the active requests counter.
func (m *Metrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

type metricsContextKey struct{}

// ContextWithMetrics stores metrics in ctx.
func ContextWithMetrics(ctx context.Context, m *Metrics) context.Context {
	return context.WithValue(ctx, metricsContextKey{}, m)
}

// MetricsFromContext returns the metrics stored in ctx, or nil.
func MetricsFromContext(ctx context.Context) *Metrics {
	m, _ := ctx.Value(metricsContextKey{}).(*Metrics)
	return m
}
