package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Telemetry holds the meter provider and the instruments the pipeline
// records. A nil *Telemetry is valid and turns every Record call into a
// no-op, so components never need to branch on whether metrics are enabled.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	apiRequestsTotal  metric.Int64Counter
	tokenAcquisitions metric.Int64Counter
	downloadsTotal    metric.Int64Counter
	downloadBytes     metric.Int64Counter
	downloadDuration  metric.Float64Histogram
	enrichmentsTotal  metric.Int64Counter
}

// Config holds telemetry configuration.
type Config struct {
	ServiceName string
}

// New creates a telemetry instance backed by a prometheus exporter.
func New(cfg Config) (*Telemetry, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(cfg.ServiceName)

	t := &Telemetry{
		meterProvider: provider,
		meter:         meter,
	}

	if err := t.initInstruments(); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Telemetry) initInstruments() error {
	var err error

	if t.apiRequestsTotal, err = t.meter.Int64Counter("api_requests_total",
		metric.WithDescription("Total API requests by endpoint and outcome")); err != nil {
		return fmt.Errorf("failed to create api_requests_total: %w", err)
	}

	if t.tokenAcquisitions, err = t.meter.Int64Counter("token_acquisitions_total",
		metric.WithDescription("Credential acquisitions by strategy")); err != nil {
		return fmt.Errorf("failed to create token_acquisitions_total: %w", err)
	}

	if t.downloadsTotal, err = t.meter.Int64Counter("downloads_total",
		metric.WithDescription("Download attempts by outcome")); err != nil {
		return fmt.Errorf("failed to create downloads_total: %w", err)
	}

	if t.downloadBytes, err = t.meter.Int64Counter("download_bytes_total",
		metric.WithDescription("Bytes written by successful downloads")); err != nil {
		return fmt.Errorf("failed to create download_bytes_total: %w", err)
	}

	if t.downloadDuration, err = t.meter.Float64Histogram("download_duration_seconds",
		metric.WithDescription("Duration of network fetches")); err != nil {
		return fmt.Errorf("failed to create download_duration_seconds: %w", err)
	}

	if t.enrichmentsTotal, err = t.meter.Int64Counter("enrichments_total",
		metric.WithDescription("Enrichment phase results by outcome")); err != nil {
		return fmt.Errorf("failed to create enrichments_total: %w", err)
	}

	return nil
}

// Handler returns the prometheus scrape handler.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.Handler()
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}

	return t.meterProvider.Shutdown(ctx)
}

// RecordAPIRequest counts one API round trip with its outcome.
func (t *Telemetry) RecordAPIRequest(ctx context.Context, endpoint, outcome string) {
	if t == nil {
		return
	}

	t.apiRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("outcome", outcome),
	))
}

// RecordTokenAcquisition counts one credential acquisition per strategy.
func (t *Telemetry) RecordTokenAcquisition(ctx context.Context, strategy string) {
	if t == nil {
		return
	}

	t.tokenAcquisitions.Add(ctx, 1, metric.WithAttributes(attribute.String("strategy", strategy)))
}

// RecordDownload counts one download attempt and, for successes, its size
// and duration.
func (t *Telemetry) RecordDownload(ctx context.Context, outcome string, bytes int64, elapsed time.Duration) {
	if t == nil {
		return
	}

	t.downloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	if bytes > 0 {
		t.downloadBytes.Add(ctx, bytes)
	}

	if elapsed > 0 {
		t.downloadDuration.Record(ctx, elapsed.Seconds())
	}
}

// RecordEnrichment counts one per-item enrichment phase result.
func (t *Telemetry) RecordEnrichment(ctx context.Context, phase, outcome string) {
	if t == nil {
		return
	}

	t.enrichmentsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
		attribute.String("outcome", outcome),
	))
}
