// Package ingest implements the ingestion pipeline: fetch a month-bucketed
// payload, validate its shape, normalize it into flat price facts, and hand
// them to the store for an idempotent upsert.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"pangancache/internal/model"
	"pangancache/internal/store"
	"pangancache/internal/upstream"
)

// Ingestor composes the pipeline phases into one invocable operation. It
// holds no state between invocations; all coordination happens through the
// backing store's constraints, so concurrent Runs are safe.
type Ingestor struct {
	client upstream.Client
	store  store.Store
	log    *logrus.Logger
}

func New(client upstream.Client, st store.Store, log *logrus.Logger) *Ingestor {
	if log == nil {
		log = logrus.New()
	}
	return &Ingestor{client: client, store: st, log: log}
}

// Run executes fetch → validate → normalize → seed → upsert for one window
// and returns the summary. Parameter validation failures surface before any
// network call. With dryRun the persistence phases are skipped and the
// summary reports what would have been written.
//
// Every non-row failure aborts the remaining pipeline; the returned error
// carries the failing phase and the summary carries the timings so far.
func (ing *Ingestor) Run(ctx context.Context, params model.FetchParams, dryRun bool) (model.IngestSummary, error) {
	summary := model.IngestSummary{DryRun: dryRun}

	if err := validateParams(params); err != nil {
		return summary, err
	}

	started := time.Now()

	phaseStart := time.Now()
	payload, err := ing.client.Fetch(ctx, params)
	summary.Timings.Fetch = time.Since(phaseStart)
	if err != nil {
		return summary, ing.fail(params, &summary, started, "fetch", err)
	}

	phaseStart = time.Now()
	err = ValidatePayload(payload)
	summary.Timings.Validate = time.Since(phaseStart)
	if err != nil {
		return summary, ing.fail(params, &summary, started, "validate", err)
	}

	phaseStart = time.Now()
	rows, commodities := NormalizePayload(payload, params)
	summary.TotalRows = len(rows)
	summary.Timings.Normalize = time.Since(phaseStart)

	if dryRun {
		summary.Timings.Total = time.Since(started)
		ing.logSummary(params, summary)
		return summary, nil
	}

	phaseStart = time.Now()
	err = ing.store.SeedDimensions(ctx, commodities, []model.Province{provinceFor(params)})
	summary.Timings.Seed = time.Since(phaseStart)
	if err != nil {
		return summary, ing.fail(params, &summary, started, "seed", err)
	}

	phaseStart = time.Now()
	counts, err := ing.store.UpsertPrices(ctx, rows)
	summary.Timings.Upsert = time.Since(phaseStart)
	summary.Inserted = counts.Inserted
	summary.Updated = counts.Updated
	summary.Unchanged = counts.Unchanged
	summary.Failed = counts.Failed()
	if err != nil {
		return summary, ing.fail(params, &summary, started, "upsert", err)
	}
	for i := range counts.RowErrors {
		rowErr := &counts.RowErrors[i]
		ing.log.WithFields(logrus.Fields{
			"commodity_id": rowErr.CommodityID,
			"period_start": rowErr.PeriodStart.Format("2006-01-02"),
			"row_index":    rowErr.Index,
		}).WithError(rowErr.Err).Warn("price row failed persistence")
	}

	summary.Timings.Total = time.Since(started)
	ing.logSummary(params, summary)
	return summary, nil
}

func validateParams(params model.FetchParams) error {
	currentYear := time.Now().UTC().Year()
	if params.StartYear < 2000 || params.StartYear > currentYear+1 {
		return &ParameterError{Field: "start_year", Reason: fmt.Sprintf("must be between 2000 and %d", currentYear+1)}
	}
	if params.EndYear < 2000 || params.EndYear > currentYear+1 {
		return &ParameterError{Field: "end_year", Reason: fmt.Sprintf("must be between 2000 and %d", currentYear+1)}
	}
	if params.StartYear > params.EndYear {
		return &ParameterError{Field: "start_year", Reason: "must be <= end_year"}
	}
	if params.PeriodStart.IsZero() || params.PeriodEnd.IsZero() {
		return &ParameterError{Field: "period", Reason: "period_start and period_end are required"}
	}
	if params.PeriodStart.After(params.PeriodEnd) {
		return &ParameterError{Field: "period_start", Reason: "must be <= period_end"}
	}
	if params.LevelID < model.LevelIDMin || params.LevelID > model.LevelIDMax {
		return &ParameterError{
			Field:  "level_id",
			Reason: fmt.Sprintf("must be between %d and %d", model.LevelIDMin, model.LevelIDMax),
		}
	}
	return nil
}

// provinceFor names the dimension row the batch will reference. The payload
// carries no province name, so a specific province seeds under its own id;
// first-write-wins means a better name set elsewhere is never overwritten.
func provinceFor(params model.FetchParams) model.Province {
	id := params.Province()
	if id == model.NationalProvinceID {
		return model.Province{ID: id, Name: "National Aggregate"}
	}
	return model.Province{ID: id, Name: id}
}

func (ing *Ingestor) fail(params model.FetchParams, summary *model.IngestSummary, started time.Time, phase string, err error) error {
	summary.Timings.Total = time.Since(started)
	ing.fields(params, *summary).WithError(err).WithField("phase", phase).Error("ingestion failed")
	return fmt.Errorf("%s: %w", phase, err)
}

func (ing *Ingestor) logSummary(params model.FetchParams, summary model.IngestSummary) {
	ing.fields(params, summary).Info("ingestion completed")
}

func (ing *Ingestor) fields(params model.FetchParams, summary model.IngestSummary) *logrus.Entry {
	return ing.log.WithFields(logrus.Fields{
		"operation":    "ingest",
		"level_id":     params.LevelID,
		"province_id":  params.Province(),
		"period_start": params.PeriodStart.Format("2006-01-02"),
		"period_end":   params.PeriodEnd.Format("2006-01-02"),
		"dry_run":      summary.DryRun,
		"total_rows":   summary.TotalRows,
		"inserted":     summary.Inserted,
		"updated":      summary.Updated,
		"unchanged":    summary.Unchanged,
		"failed":       summary.Failed,
		"fetch_ms":     summary.Timings.Fetch.Milliseconds(),
		"validate_ms":  summary.Timings.Validate.Milliseconds(),
		"normalize_ms": summary.Timings.Normalize.Milliseconds(),
		"seed_ms":      summary.Timings.Seed.Milliseconds(),
		"upsert_ms":    summary.Timings.Upsert.Milliseconds(),
		"total_ms":     summary.Timings.Total.Milliseconds(),
	})
}
