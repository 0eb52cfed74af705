package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangancache/internal/api"
	"pangancache/internal/ingest"
	"pangancache/internal/model"
	"pangancache/internal/store"
)

type fakeStore struct {
	store.NopStore
	query   store.PriceQuery
	result  store.PriceResult
	listErr error
}

func (s *fakeStore) QueryPrices(_ context.Context, query store.PriceQuery) (store.PriceResult, error) {
	s.query = query
	return s.result, nil
}

func (s *fakeStore) ListCommodities(context.Context) ([]model.Commodity, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return []model.Commodity{{ID: "27", Name: "Beras Premium"}}, nil
}

type fakeRunner struct {
	params  model.FetchParams
	dryRun  bool
	summary model.IngestSummary
	err     error
}

func (r *fakeRunner) Run(_ context.Context, params model.FetchParams, dryRun bool) (model.IngestSummary, error) {
	r.params = params
	r.dryRun = dryRun
	return r.summary, r.err
}

func newHandler(st store.Store, runner api.IngestRunner) http.Handler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return api.New(st, runner, log).Router()
}

func doRequest(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(method, target, reader))
	return recorder
}

func TestHealthz(t *testing.T) {
	recorder := doRequest(t, newHandler(&fakeStore{}, &fakeRunner{}), http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"status":"ok"}`, recorder.Body.String())
}

func TestListPricesRequiresLevel(t *testing.T) {
	recorder := doRequest(t, newHandler(&fakeStore{}, &fakeRunner{}), http.MethodGet, "/prices", "")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "level_id")
}

func TestListPricesRejectsBadWindow(t *testing.T) {
	recorder := doRequest(t, newHandler(&fakeStore{}, &fakeRunner{}), http.MethodGet,
		"/prices?level_id=3&period_start=2024-02-01&period_end=2024-01-01", "")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestListPricesRejectsOversizedLimit(t *testing.T) {
	recorder := doRequest(t, newHandler(&fakeStore{}, &fakeRunner{}), http.MethodGet,
		"/prices?level_id=3&limit=5000", "")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestListPricesPassesFiltersToStore(t *testing.T) {
	st := &fakeStore{}
	recorder := doRequest(t, newHandler(st, &fakeRunner{}), http.MethodGet,
		"/prices?level_id=3&commodity_id=27&period_start=2024-01-01&period_end=2024-02-29&limit=5&offset=10", "")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, 3, st.query.LevelID)
	assert.Equal(t, "27", st.query.CommodityID)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), st.query.PeriodStart)
	assert.Equal(t, 5, st.query.Limit)
	assert.Equal(t, 10, st.query.Offset)
}

func TestListPricesRendersFacts(t *testing.T) {
	st := &fakeStore{
		result: store.PriceResult{
			Data: []model.PriceFact{{
				ID:            1,
				CommodityID:   "27",
				CommodityName: "Beras Premium",
				ProvinceID:    model.NationalProvinceID,
				ProvinceName:  "National Aggregate",
				LevelID:       3,
				PeriodStart:   time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
				PeriodEnd:     time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC),
				Price:         decimal.NewFromInt(14000),
				Unit:          "Rp./Kg",
			}},
			Total:  1,
			Limit:  50,
			Offset: 0,
		},
	}

	recorder := doRequest(t, newHandler(st, &fakeRunner{}), http.MethodGet, "/prices?level_id=3", "")

	require.Equal(t, http.StatusOK, recorder.Code)
	var body struct {
		Data  []map[string]any `json:"data"`
		Total int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Data, 1)
	assert.Equal(t, "2024-01-01", body.Data[0]["period_start"])
	assert.Equal(t, "2024-01-31", body.Data[0]["period_end"])
	assert.Equal(t, "Beras Premium", body.Data[0]["commodity_name"])
}

func TestListCommodities(t *testing.T) {
	recorder := doRequest(t, newHandler(&fakeStore{}, &fakeRunner{}), http.MethodGet, "/commodities", "")

	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "Beras Premium")
}

func TestTriggerIngestReturnsSummary(t *testing.T) {
	runner := &fakeRunner{
		summary: model.IngestSummary{Inserted: 2, TotalRows: 2},
	}

	recorder := doRequest(t, newHandler(&fakeStore{}, runner), http.MethodPost, "/ingest", `{
		"start_year": 2024, "end_year": 2024,
		"period_start": "2024-01-01", "period_end": "2024-02-29",
		"level_id": 3, "dry_run": false
	}`)

	require.Equal(t, http.StatusOK, recorder.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["inserted"])
	assert.EqualValues(t, 2, body["total_rows"])

	assert.Equal(t, 2024, runner.params.StartYear)
	assert.Equal(t, 3, runner.params.LevelID)
	assert.False(t, runner.dryRun)
}

func TestTriggerIngestRejectsBadBody(t *testing.T) {
	recorder := doRequest(t, newHandler(&fakeStore{}, &fakeRunner{}), http.MethodPost, "/ingest", `{not json`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "invalid JSON body")
}

func TestTriggerIngestMapsParameterErrors(t *testing.T) {
	runner := &fakeRunner{err: &ingest.ParameterError{Field: "level_id", Reason: "must be between 1 and 5"}}

	recorder := doRequest(t, newHandler(&fakeStore{}, runner), http.MethodPost, "/ingest", `{
		"start_year": 2024, "end_year": 2024,
		"period_start": "2024-01-01", "period_end": "2024-01-31",
		"level_id": 9
	}`)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestTriggerIngestMapsSchemaErrors(t *testing.T) {
	runner := &fakeRunner{err: &ingest.SchemaError{Key: "data", Reason: "missing"}}

	recorder := doRequest(t, newHandler(&fakeStore{}, runner), http.MethodPost, "/ingest", `{
		"start_year": 2024, "end_year": 2024,
		"period_start": "2024-01-01", "period_end": "2024-01-31",
		"level_id": 3
	}`)

	assert.Equal(t, http.StatusBadGateway, recorder.Code)
}
