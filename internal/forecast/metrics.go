package forecast

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/aqforecast/aqforecast/internal/forecast"

var tracer = otel.Tracer(instrumentationName)

// Metrics holds the OpenTelemetry instruments for forecast resolution.
// A nil *Metrics records nothing.
type Metrics struct {
	refreshDuration metric.Float64Histogram
	refreshTotal    metric.Int64Counter
	probeTotal      metric.Int64Counter
	stepsBack       metric.Int64Histogram
	sitesIngested   metric.Int64Histogram
}

// NewMetrics creates the forecast instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	refreshDuration, err := meter.Float64Histogram(
		"forecast.refresh.duration",
		metric.WithDescription("Duration of forecast refreshes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	refreshTotal, err := meter.Int64Counter(
		"forecast.refresh.total",
		metric.WithDescription("Total number of forecast refreshes by outcome"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, err
	}

	probeTotal, err := meter.Int64Counter(
		"forecast.snapshot.probe.total",
		metric.WithDescription("Snapshot existence checks by source and outcome"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return nil, err
	}

	stepsBack, err := meter.Int64Histogram(
		"forecast.snapshot.steps_back",
		metric.WithDescription("Days walked back before a snapshot was found"),
		metric.WithUnit("{day}"),
	)
	if err != nil {
		return nil, err
	}

	sitesIngested, err := meter.Int64Histogram(
		"forecast.ingest.sites",
		metric.WithDescription("Sites ingested per source snapshot"),
		metric.WithUnit("{site}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		refreshDuration: refreshDuration,
		refreshTotal:    refreshTotal,
		probeTotal:      probeTotal,
		stepsBack:       stepsBack,
		sitesIngested:   sitesIngested,
	}, nil
}

// RecordRefresh records one refresh and its outcome.
func (m *Metrics) RecordRefresh(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	ctx := context.TODO()
	m.refreshDuration.Record(ctx, duration.Seconds(), attrs)
	m.refreshTotal.Add(ctx, 1, attrs)
}

// RecordProbe records one snapshot existence check.
func (m *Metrics) RecordProbe(source Source, outcome string) {
	if m == nil {
		return
	}
	m.probeTotal.Add(context.TODO(), 1, metric.WithAttributes(
		attribute.String("source", string(source)),
		attribute.String("outcome", outcome),
	))
}

// RecordLocated records how far back a snapshot was found.
func (m *Metrics) RecordLocated(source Source, stepsBack int) {
	if m == nil {
		return
	}
	m.stepsBack.Record(context.TODO(), int64(stepsBack),
		metric.WithAttributes(attribute.String("source", string(source))))
}

// RecordIngest records the site count of an ingested snapshot.
func (m *Metrics) RecordIngest(source Source, sites int) {
	if m == nil {
		return
	}
	m.sitesIngested.Record(context.TODO(), int64(sites),
		metric.WithAttributes(attribute.String("source", string(source))))
}
