package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// NationalProvinceID is the sentinel province for nationally aggregated
// prices. The upstream returns national figures when no province is
// requested.
const NationalProvinceID = "NATIONAL"

const (
	LevelIDMin = 1
	LevelIDMax = 5
)

// FetchParams identifies one ingestion window against the upstream feed.
// An empty ProvinceID means national aggregation.
type FetchParams struct {
	StartYear   int
	EndYear     int
	PeriodStart time.Time
	PeriodEnd   time.Time
	LevelID     int
	ProvinceID  string
}

// Province returns the effective province scope for the request.
func (p FetchParams) Province() string {
	if p.ProvinceID == "" {
		return NationalProvinceID
	}
	return p.ProvinceID
}

// PriceRow is a normalized monthly price candidate produced from one
// (commodity, month) pair of the raw payload. It is ephemeral; only the
// persisted PriceFact carries a surrogate id and timestamps.
type PriceRow struct {
	CommodityID string
	ProvinceID  string
	LevelID     int
	PeriodStart time.Time
	PeriodEnd   time.Time
	Price       decimal.Decimal
	Unit        string
	Checksum    string
}

// PriceFact is a persisted price observation. The tuple
// (CommodityID, ProvinceID, LevelID, PeriodStart, PeriodEnd) is unique and is
// the row's sole stable identity; price, unit and checksum may change across
// re-ingestion of the same window.
type PriceFact struct {
	ID            int64
	CommodityID   string
	CommodityName string
	ProvinceID    string
	ProvinceName  string
	LevelID       int
	PeriodStart   time.Time
	PeriodEnd     time.Time
	Price         decimal.Decimal
	Unit          string
	Checksum      string
	InsertedAt    time.Time
	UpdatedAt     time.Time
}

type Commodity struct {
	ID   string
	Name string
}

type Province struct {
	ID   string
	Name string
}

// PhaseTimings records wall-clock durations per pipeline phase, measured on
// the monotonic clock.
type PhaseTimings struct {
	Fetch     time.Duration
	Validate  time.Duration
	Normalize time.Duration
	Seed      time.Duration
	Upsert    time.Duration
	Total     time.Duration
}

// IngestSummary is returned to the caller of one ingestion run. It is never
// persisted; logging and metrics are the caller's concern.
type IngestSummary struct {
	Inserted  int
	Updated   int
	Unchanged int
	Failed    int
	TotalRows int
	DryRun    bool
	Timings   PhaseTimings
}
