package ingest_test

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangancache/internal/ingest"
	"pangancache/internal/model"
	"pangancache/internal/store"
	"pangancache/internal/store/sqlite"
	"pangancache/internal/upstream"
	"pangancache/internal/upstream/panelharga"
)

type fakeClient struct {
	payload upstream.Payload
	err     error
	calls   int
}

func (c *fakeClient) Fetch(context.Context, model.FetchParams) (upstream.Payload, error) {
	c.calls++
	return c.payload, c.err
}

type fakeStore struct {
	store.NopStore
	seedCalls   int
	upsertCalls int
	rows        []model.PriceRow
}

func (s *fakeStore) SeedDimensions(context.Context, []model.Commodity, []model.Province) error {
	s.seedCalls++
	return nil
}

func (s *fakeStore) UpsertPrices(_ context.Context, rows []model.PriceRow) (store.UpsertCounts, error) {
	s.upsertCalls++
	s.rows = rows
	return store.UpsertCounts{Inserted: len(rows)}, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func monthWindow(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

func testParams() model.FetchParams {
	start, _ := monthWindow(2024, time.January)
	_, end := monthWindow(2024, time.February)
	return model.FetchParams{
		StartYear:   2024,
		EndYear:     2024,
		PeriodStart: start,
		PeriodEnd:   end,
		LevelID:     3,
	}
}

func ricePayload() upstream.Payload {
	return upstream.Payload{
		"request_data": map[string]any{"level_harga_id": 3},
		"data": map[string]any{
			"2024": []any{
				map[string]any{
					"Komoditas_id": 27,
					"Komoditas":    "Beras Premium",
					"today_province_price": map[string]any{
						"satuan": "Rp./Kg",
					},
					"Jan": 14000,
					"Feb": 14200,
				},
			},
		},
	}
}

func TestRunRejectsBadParamsBeforeFetch(t *testing.T) {
	client := &fakeClient{payload: ricePayload()}
	ing := ingest.New(client, &store.NopStore{}, quietLogger())

	params := testParams()
	params.PeriodStart, params.PeriodEnd = params.PeriodEnd, params.PeriodStart

	_, err := ing.Run(context.Background(), params, false)

	var paramErr *ingest.ParameterError
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "period_start", paramErr.Field)
	assert.Zero(t, client.calls)
}

func TestRunDryRunSkipsPersistence(t *testing.T) {
	st := &fakeStore{}
	ing := ingest.New(&fakeClient{payload: ricePayload()}, st, quietLogger())

	summary, err := ing.Run(context.Background(), testParams(), true)

	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 2, summary.TotalRows)
	assert.Zero(t, summary.Inserted)
	assert.Zero(t, st.seedCalls)
	assert.Zero(t, st.upsertCalls)
}

func TestRunWrapsFetchFailures(t *testing.T) {
	fetchErr := &upstream.FetchError{Status: 503, Attempts: 5, Err: errors.New("status 503")}
	ing := ingest.New(&fakeClient{err: fetchErr}, &store.NopStore{}, quietLogger())

	_, err := ing.Run(context.Background(), testParams(), false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch:")
	var unwrapped *upstream.FetchError
	assert.ErrorAs(t, err, &unwrapped)
}

func TestRunWrapsValidationFailures(t *testing.T) {
	payload := ricePayload()
	delete(payload, "request_data")
	st := &fakeStore{}
	ing := ingest.New(&fakeClient{payload: payload}, st, quietLogger())

	_, err := ing.Run(context.Background(), testParams(), false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate:")
	var schemaErr *ingest.SchemaError
	assert.ErrorAs(t, err, &schemaErr)
	assert.Zero(t, st.upsertCalls)
}

func TestRunSeedsBeforeUpsert(t *testing.T) {
	st := &fakeStore{}
	ing := ingest.New(&fakeClient{payload: ricePayload()}, st, quietLogger())

	summary, err := ing.Run(context.Background(), testParams(), false)

	require.NoError(t, err)
	assert.Equal(t, 1, st.seedCalls)
	assert.Equal(t, 1, st.upsertCalls)
	assert.Equal(t, 2, summary.Inserted)
	require.Len(t, st.rows, 2)
	assert.NotEmpty(t, st.rows[0].Checksum)
}

func TestRunIsIdempotentAgainstSqlite(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "prices.db"))
	require.NoError(t, err)
	defer st.Close()

	ing := ingest.New(&fakeClient{payload: ricePayload()}, st, quietLogger())
	params := testParams()

	first, err := ing.Run(context.Background(), params, false)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Inserted)
	assert.Zero(t, first.Updated)
	assert.Zero(t, first.Unchanged)
	assert.Zero(t, first.Failed)

	second, err := ing.Run(context.Background(), params, false)
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Zero(t, second.Updated)
	assert.Equal(t, 2, second.Unchanged)
}

func TestRunDetectsChangedPrices(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "prices.db"))
	require.NoError(t, err)
	defer st.Close()

	client := &fakeClient{payload: ricePayload()}
	ing := ingest.New(client, st, quietLogger())
	params := testParams()

	_, err = ing.Run(context.Background(), params, false)
	require.NoError(t, err)

	revised := ricePayload()
	entry := revised["data"].(map[string]any)["2024"].([]any)[0].(map[string]any)
	entry["Feb"] = 14500
	client.payload = revised

	summary, err := ing.Run(context.Background(), params, false)
	require.NoError(t, err)
	assert.Zero(t, summary.Inserted)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Unchanged)
}

func TestRunWithMockClient(t *testing.T) {
	st, err := sqlite.New(filepath.Join(t.TempDir(), "prices.db"))
	require.NoError(t, err)
	defer st.Close()

	ing := ingest.New(panelharga.NewMock(), st, quietLogger())

	start, _ := monthWindow(2024, time.January)
	_, end := monthWindow(2024, time.December)
	params := model.FetchParams{
		StartYear:   2024,
		EndYear:     2024,
		PeriodStart: start,
		PeriodEnd:   end,
		LevelID:     3,
	}

	first, err := ing.Run(context.Background(), params, false)
	require.NoError(t, err)
	assert.Equal(t, 24, first.TotalRows)
	assert.Equal(t, 24, first.Inserted)

	second, err := ing.Run(context.Background(), params, false)
	require.NoError(t, err)
	assert.Equal(t, 24, second.Unchanged)
}
