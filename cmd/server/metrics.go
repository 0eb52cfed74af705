package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"pangancache/internal/api"
	"pangancache/internal/model"
)

// The core never touches metrics; the server observes returned summaries.
type metrics struct {
	runs     *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration prometheus.Histogram
}

func newMetrics(registry *prometheus.Registry) *metrics {
	factory := promauto.With(registry)
	return &metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pangancache_ingest_runs_total",
			Help: "Ingestion runs by outcome.",
		}, []string{"status"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pangancache_ingest_rows_total",
			Help: "Upserted rows by classification.",
		}, []string{"result"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "pangancache_ingest_duration_seconds",
			Help:    "Wall-clock duration of ingestion runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

type instrumentedRunner struct {
	inner   api.IngestRunner
	metrics *metrics
}

func (r *instrumentedRunner) Run(ctx context.Context, params model.FetchParams, dryRun bool) (model.IngestSummary, error) {
	summary, err := r.inner.Run(ctx, params, dryRun)

	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.runs.WithLabelValues(status).Inc()
	r.metrics.duration.Observe(summary.Timings.Total.Seconds())

	if err == nil && !summary.DryRun {
		r.metrics.rows.WithLabelValues("inserted").Add(float64(summary.Inserted))
		r.metrics.rows.WithLabelValues("updated").Add(float64(summary.Updated))
		r.metrics.rows.WithLabelValues("unchanged").Add(float64(summary.Unchanged))
		r.metrics.rows.WithLabelValues("failed").Add(float64(summary.Failed))
	}
	return summary, err
}

var _ api.IngestRunner = (*instrumentedRunner)(nil)
