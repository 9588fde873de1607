package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pollenwatch/pollenwatch/internal/telemetry"

// FetchMetrics holds the instruments for upstream pollen fetches.
type FetchMetrics struct {
	fetchDuration metric.Float64Histogram
	fetchTotal    metric.Int64Counter
	fetchFailures metric.Int64Counter
}

// NewFetchMetrics creates the upstream fetch instruments.
func NewFetchMetrics() (*FetchMetrics, error) {
	meter := otel.Meter(meterName)

	fetchDuration, err := meter.Float64Histogram(
		"pollen.fetch.duration",
		metric.WithDescription("Duration of upstream pollen fetches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	fetchTotal, err := meter.Int64Counter(
		"pollen.fetch.total",
		metric.WithDescription("Total number of upstream pollen fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	fetchFailures, err := meter.Int64Counter(
		"pollen.fetch.failures",
		metric.WithDescription("Number of failed upstream pollen fetches"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	return &FetchMetrics{
		fetchDuration: fetchDuration,
		fetchTotal:    fetchTotal,
		fetchFailures: fetchFailures,
	}, nil
}

// RecordFetch records the outcome of one upstream fetch.
func (m *FetchMetrics) RecordFetch(provider, region string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("pollen.region", region),
	}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Metrics outlive request contexts; use a detached context.
	ctx := context.TODO()
	m.fetchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.fetchTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	if err != nil {
		m.fetchFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}
