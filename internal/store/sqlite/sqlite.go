// Package sqlite persists price facts and dimensions in a sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"pangancache/internal/model"
	"pangancache/internal/store"
)

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}

	// DSN pragmas apply to every connection, including ones opened after
	// migrate. busy_timeout keeps a second process (CLI run against a live
	// server) waiting on the write lock instead of failing with SQLITE_BUSY.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	st := &Store{db: db}
	if err := st.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return st, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SeedDimensions inserts any missing commodity and province rows. Existing
// rows keep their name: ON CONFLICT DO NOTHING gives first-write-wins for
// dimension metadata.
func (s *Store) SeedDimensions(ctx context.Context, commodities []model.Commodity, provinces []model.Province) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &store.PersistenceError{Op: "seed dimensions", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, commodity := range commodities {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO commodities (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
			commodity.ID, commodity.Name,
		); err != nil {
			return &store.PersistenceError{Op: "seed commodity " + commodity.ID, Err: err}
		}
	}
	for _, province := range provinces {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO provinces (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`,
			province.ID, province.Name,
		); err != nil {
			return &store.PersistenceError{Op: "seed province " + province.ID, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &store.PersistenceError{Op: "seed dimensions", Err: err}
	}
	return nil
}

// UpsertPrices applies each candidate with a single conditional statement:
// insert on a new key, update when the stored checksum differs, do nothing
// when it matches. The classification comes from the same statement, so
// concurrent invocations over overlapping keys cannot both observe "new".
// Row failures are collected, not fatal.
func (s *Store) UpsertPrices(ctx context.Context, rows []model.PriceRow) (store.UpsertCounts, error) {
	counts := store.UpsertCounts{}
	if len(rows) == 0 {
		return counts, nil
	}

	stmt, err := s.db.PrepareContext(ctx, `
		INSERT INTO price_facts (
			commodity_id, province_id, level_id, period_start, period_end,
			price, unit, checksum, inserted_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(commodity_id, province_id, level_id, period_start, period_end)
		DO UPDATE SET
			price = excluded.price,
			unit = excluded.unit,
			checksum = excluded.checksum,
			updated_at = excluded.updated_at
		WHERE price_facts.checksum IS NOT excluded.checksum
		RETURNING inserted_at = updated_at
	`)
	if err != nil {
		return counts, &store.PersistenceError{Op: "prepare upsert", Err: err}
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i := range rows {
		row := rows[i]
		// Fresh inserts get inserted_at == updated_at (the same now);
		// conflicting updates only move updated_at, so the RETURNING
		// comparison distinguishes the two. No returned row means the
		// checksum matched and nothing was written.
		var inserted int
		err := stmt.QueryRowContext(
			ctx,
			row.CommodityID,
			row.ProvinceID,
			row.LevelID,
			row.PeriodStart.Format(dateLayout),
			row.PeriodEnd.Format(dateLayout),
			row.Price.String(),
			row.Unit,
			row.Checksum,
			now,
			now,
		).Scan(&inserted)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			counts.Unchanged++
		case err != nil:
			counts.RowErrors = append(counts.RowErrors, store.RowError{
				Index:       i,
				CommodityID: row.CommodityID,
				PeriodStart: row.PeriodStart,
				Err:         err,
			})
		case inserted == 1:
			counts.Inserted++
		default:
			counts.Updated++
		}
	}

	return counts, nil
}

func (s *Store) QueryPrices(ctx context.Context, query store.PriceQuery) (store.PriceResult, error) {
	result := store.PriceResult{Limit: query.Limit, Offset: query.Offset}

	where := ` WHERE f.level_id = ?`
	args := []any{query.LevelID}
	if query.CommodityID != "" {
		where += ` AND f.commodity_id = ?`
		args = append(args, query.CommodityID)
	}
	if query.ProvinceID != "" {
		where += ` AND f.province_id = ?`
		args = append(args, query.ProvinceID)
	}
	if !query.PeriodStart.IsZero() {
		where += ` AND f.period_start >= ?`
		args = append(args, query.PeriodStart.Format(dateLayout))
	}
	if !query.PeriodEnd.IsZero() {
		where += ` AND f.period_end <= ?`
		args = append(args, query.PeriodEnd.Format(dateLayout))
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM price_facts f`+where, args...,
	).Scan(&result.Total); err != nil {
		return result, &store.PersistenceError{Op: "count prices", Err: err}
	}

	args = append(args, query.Limit, query.Offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.commodity_id, c.name, f.province_id, p.name,
			f.level_id, f.period_start, f.period_end, f.price, f.unit,
			f.checksum, f.inserted_at, f.updated_at
		FROM price_facts f
		JOIN commodities c ON c.id = f.commodity_id
		JOIN provinces p ON p.id = f.province_id`+where+`
		ORDER BY f.period_start DESC, f.commodity_id
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return result, &store.PersistenceError{Op: "query prices", Err: err}
	}
	defer rows.Close()

	for rows.Next() {
		fact, err := scanFact(rows)
		if err != nil {
			return result, &store.PersistenceError{Op: "scan price", Err: err}
		}
		result.Data = append(result.Data, fact)
	}
	if err := rows.Err(); err != nil {
		return result, &store.PersistenceError{Op: "query prices", Err: err}
	}
	return result, nil
}

func scanFact(rows *sql.Rows) (model.PriceFact, error) {
	var fact model.PriceFact
	var periodStart, periodEnd, price, insertedAt, updatedAt string
	var checksum sql.NullString
	if err := rows.Scan(
		&fact.ID, &fact.CommodityID, &fact.CommodityName,
		&fact.ProvinceID, &fact.ProvinceName, &fact.LevelID,
		&periodStart, &periodEnd, &price, &fact.Unit,
		&checksum, &insertedAt, &updatedAt,
	); err != nil {
		return fact, err
	}

	var err error
	if fact.PeriodStart, err = time.Parse(dateLayout, periodStart); err != nil {
		return fact, err
	}
	if fact.PeriodEnd, err = time.Parse(dateLayout, periodEnd); err != nil {
		return fact, err
	}
	if fact.Price, err = decimal.NewFromString(price); err != nil {
		return fact, err
	}
	fact.Checksum = checksum.String
	if fact.InsertedAt, err = time.Parse(time.RFC3339Nano, insertedAt); err != nil {
		return fact, err
	}
	if fact.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return fact, err
	}
	return fact, nil
}

func (s *Store) ListCommodities(ctx context.Context) ([]model.Commodity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM commodities ORDER BY id`)
	if err != nil {
		return nil, &store.PersistenceError{Op: "list commodities", Err: err}
	}
	defer rows.Close()

	var out []model.Commodity
	for rows.Next() {
		var c model.Commodity
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, &store.PersistenceError{Op: "scan commodity", Err: err}
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.PersistenceError{Op: "list commodities", Err: err}
	}
	return out, nil
}

func (s *Store) ListProvinces(ctx context.Context) ([]model.Province, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM provinces ORDER BY id`)
	if err != nil {
		return nil, &store.PersistenceError{Op: "list provinces", Err: err}
	}
	defer rows.Close()

	var out []model.Province
	for rows.Next() {
		var p model.Province
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, &store.PersistenceError{Op: "scan province", Err: err}
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.PersistenceError{Op: "list provinces", Err: err}
	}
	return out, nil
}

func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS commodities (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS provinces (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS price_facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			commodity_id TEXT NOT NULL REFERENCES commodities(id),
			province_id TEXT NOT NULL REFERENCES provinces(id),
			level_id INTEGER NOT NULL,
			period_start TEXT NOT NULL,
			period_end TEXT NOT NULL,
			price TEXT NOT NULL,
			unit TEXT NOT NULL,
			checksum TEXT,
			inserted_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			CHECK (period_start <= period_end),
			UNIQUE (commodity_id, province_id, level_id, period_start, period_end)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_price_facts_period_start
			ON price_facts (period_start DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_price_facts_filters
			ON price_facts (level_id, period_start, period_end);`,
		// The national aggregate row must exist before the first ingest so
		// national-scope facts always satisfy the foreign key.
		`INSERT INTO provinces (id, name) VALUES ('NATIONAL', 'National Aggregate')
			ON CONFLICT(id) DO NOTHING;`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return err
		}
	}

	return nil
}

var _ store.Store = (*Store)(nil)
