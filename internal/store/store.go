package store

import (
	"context"
	"fmt"
	"time"

	"pangancache/internal/model"
)

// Store is the persistence boundary for the ingestion pipeline and the read
// API. Implementations must make UpsertPrices race-safe under concurrent
// invocations targeting overlapping keys: the insert/update/unchanged
// decision has to be a single atomic conditional write, never a
// read-then-write sequence.
type Store interface {
	// SeedDimensions ensures the referenced commodity and province rows
	// exist. Existing rows keep their name (first-write-wins); failure is
	// fatal for the batch.
	SeedDimensions(ctx context.Context, commodities []model.Commodity, provinces []model.Province) error

	// UpsertPrices applies candidates against the fact table, classifying
	// each as inserted, updated or unchanged by checksum comparison.
	// Individual row failures do not abort the batch; they are collected in
	// UpsertCounts.RowErrors.
	UpsertPrices(ctx context.Context, rows []model.PriceRow) (UpsertCounts, error)

	QueryPrices(ctx context.Context, query PriceQuery) (PriceResult, error)
	ListCommodities(ctx context.Context) ([]model.Commodity, error)
	ListProvinces(ctx context.Context) ([]model.Province, error)
	Close() error
}

// UpsertCounts classifies the outcome of one batch.
type UpsertCounts struct {
	Inserted  int
	Updated   int
	Unchanged int
	RowErrors []RowError
}

func (c UpsertCounts) Failed() int { return len(c.RowErrors) }

// RowError records one candidate row that failed persistence. Non-fatal: the
// batch continues and the error is reported, not silently dropped.
type RowError struct {
	Index       int
	CommodityID string
	PeriodStart time.Time
	Err         error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("store: row %d (commodity %s, period %s) failed: %v",
		e.Index, e.CommodityID, e.PeriodStart.Format("2006-01-02"), e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// PersistenceError reports a storage-layer failure that is fatal for the
// batch, such as dimension seeding or an outage.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// PriceQuery filters and paginates the read side. Zero time bounds are
// unbounded.
type PriceQuery struct {
	LevelID     int
	CommodityID string
	ProvinceID  string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Limit       int
	Offset      int
}

type PriceResult struct {
	Data   []model.PriceFact
	Total  int
	Limit  int
	Offset int
}

// NopStore discards writes and returns nothing; used when persistence is
// disabled (dry runs without a database path).
type NopStore struct{}

func (s *NopStore) SeedDimensions(context.Context, []model.Commodity, []model.Province) error {
	return nil
}

func (s *NopStore) UpsertPrices(_ context.Context, rows []model.PriceRow) (UpsertCounts, error) {
	_ = rows
	return UpsertCounts{}, nil
}

func (s *NopStore) QueryPrices(_ context.Context, query PriceQuery) (PriceResult, error) {
	return PriceResult{Limit: query.Limit, Offset: query.Offset}, nil
}

func (s *NopStore) ListCommodities(context.Context) ([]model.Commodity, error) { return nil, nil }

func (s *NopStore) ListProvinces(context.Context) ([]model.Province, error) { return nil, nil }

func (s *NopStore) Close() error { return nil }

var _ Store = (*NopStore)(nil)
