// Package api exposes the read side (filtered, paginated price listings and
// dimension lookups) plus an admin trigger for the ingestion pipeline.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"pangancache/internal/ingest"
	"pangancache/internal/model"
	"pangancache/internal/store"
	"pangancache/internal/upstream"
)

const (
	dateLayout   = "2006-01-02"
	defaultLimit = 50
	maxLimit     = 1000
)

// IngestRunner is the invocation interface the admin trigger calls.
type IngestRunner interface {
	Run(ctx context.Context, params model.FetchParams, dryRun bool) (model.IngestSummary, error)
}

type Handler struct {
	store  store.Store
	runner IngestRunner
	log    *logrus.Logger
}

func New(st store.Store, runner IngestRunner, log *logrus.Logger) *Handler {
	return &Handler{store: st, runner: runner, log: log}
}

func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	router.HandleFunc("/prices", h.listPrices).Methods(http.MethodGet)
	router.HandleFunc("/commodities", h.listCommodities).Methods(http.MethodGet)
	router.HandleFunc("/provinces", h.listProvinces).Methods(http.MethodGet)
	router.HandleFunc("/ingest", h.triggerIngest).Methods(http.MethodPost)
	return router
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type priceResponse struct {
	ID            int64           `json:"id"`
	CommodityID   string          `json:"commodity_id"`
	CommodityName string          `json:"commodity_name"`
	ProvinceID    string          `json:"province_id"`
	ProvinceName  string          `json:"province_name"`
	LevelID       int             `json:"level_id"`
	PeriodStart   string          `json:"period_start"`
	PeriodEnd     string          `json:"period_end"`
	Price         decimal.Decimal `json:"price"`
	Unit          string          `json:"unit"`
}

type paginatedPriceResponse struct {
	Data   []priceResponse `json:"data"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func (h *Handler) listPrices(w http.ResponseWriter, r *http.Request) {
	query, err := parsePriceQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.store.QueryPrices(r.Context(), query)
	if err != nil {
		h.log.WithError(err).Error("price query failed")
		writeError(w, http.StatusInternalServerError, "failed to query prices")
		return
	}

	response := paginatedPriceResponse{
		Data:   make([]priceResponse, 0, len(result.Data)),
		Total:  result.Total,
		Limit:  result.Limit,
		Offset: result.Offset,
	}
	for _, fact := range result.Data {
		response.Data = append(response.Data, priceResponse{
			ID:            fact.ID,
			CommodityID:   fact.CommodityID,
			CommodityName: fact.CommodityName,
			ProvinceID:    fact.ProvinceID,
			ProvinceName:  fact.ProvinceName,
			LevelID:       fact.LevelID,
			PeriodStart:   fact.PeriodStart.Format(dateLayout),
			PeriodEnd:     fact.PeriodEnd.Format(dateLayout),
			Price:         fact.Price,
			Unit:          fact.Unit,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

func parsePriceQuery(r *http.Request) (store.PriceQuery, error) {
	values := r.URL.Query()
	query := store.PriceQuery{Limit: defaultLimit}

	levelID, err := strconv.Atoi(values.Get("level_id"))
	if err != nil || levelID < model.LevelIDMin || levelID > model.LevelIDMax {
		return query, errors.New("level_id must be an integer between 1 and 5")
	}
	query.LevelID = levelID
	query.CommodityID = values.Get("commodity_id")
	query.ProvinceID = values.Get("province_id")

	if raw := values.Get("period_start"); raw != "" {
		if query.PeriodStart, err = time.Parse(dateLayout, raw); err != nil {
			return query, errors.New("period_start must be YYYY-MM-DD")
		}
	}
	if raw := values.Get("period_end"); raw != "" {
		if query.PeriodEnd, err = time.Parse(dateLayout, raw); err != nil {
			return query, errors.New("period_end must be YYYY-MM-DD")
		}
	}
	if !query.PeriodStart.IsZero() && !query.PeriodEnd.IsZero() && query.PeriodEnd.Before(query.PeriodStart) {
		return query, errors.New("period_end must be after or equal to period_start")
	}

	if raw := values.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > maxLimit {
			return query, errors.New("limit must be between 1 and 1000")
		}
		query.Limit = limit
	}
	if raw := values.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return query, errors.New("offset must be >= 0")
		}
		query.Offset = offset
	}
	return query, nil
}

func (h *Handler) listCommodities(w http.ResponseWriter, r *http.Request) {
	commodities, err := h.store.ListCommodities(r.Context())
	if err != nil {
		h.log.WithError(err).Error("commodity listing failed")
		writeError(w, http.StatusInternalServerError, "failed to list commodities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": commodities})
}

func (h *Handler) listProvinces(w http.ResponseWriter, r *http.Request) {
	provinces, err := h.store.ListProvinces(r.Context())
	if err != nil {
		h.log.WithError(err).Error("province listing failed")
		writeError(w, http.StatusInternalServerError, "failed to list provinces")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": provinces})
}

type ingestRequest struct {
	StartYear   int    `json:"start_year"`
	EndYear     int    `json:"end_year"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	LevelID     int    `json:"level_id"`
	ProvinceID  string `json:"province_id"`
	DryRun      bool   `json:"dry_run"`
}

type ingestResponse struct {
	Inserted  int   `json:"inserted"`
	Updated   int   `json:"updated"`
	Unchanged int   `json:"unchanged"`
	Failed    int   `json:"failed"`
	TotalRows int   `json:"total_rows"`
	DryRun    bool  `json:"dry_run"`
	FetchMS   int64 `json:"fetch_ms"`
	UpsertMS  int64 `json:"upsert_ms"`
	TotalMS   int64 `json:"total_ms"`
}

func (h *Handler) triggerIngest(w http.ResponseWriter, r *http.Request) {
	var request ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	periodStart, err := time.Parse(dateLayout, request.PeriodStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "period_start must be YYYY-MM-DD")
		return
	}
	periodEnd, err := time.Parse(dateLayout, request.PeriodEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "period_end must be YYYY-MM-DD")
		return
	}

	params := model.FetchParams{
		StartYear:   request.StartYear,
		EndYear:     request.EndYear,
		PeriodStart: periodStart,
		PeriodEnd:   periodEnd,
		LevelID:     request.LevelID,
		ProvinceID:  request.ProvinceID,
	}

	summary, err := h.runner.Run(r.Context(), params, request.DryRun)
	if err != nil {
		writeError(w, ingestErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Inserted:  summary.Inserted,
		Updated:   summary.Updated,
		Unchanged: summary.Unchanged,
		Failed:    summary.Failed,
		TotalRows: summary.TotalRows,
		DryRun:    summary.DryRun,
		FetchMS:   summary.Timings.Fetch.Milliseconds(),
		UpsertMS:  summary.Timings.Upsert.Milliseconds(),
		TotalMS:   summary.Timings.Total.Milliseconds(),
	})
}

func ingestErrorStatus(err error) int {
	var paramErr *ingest.ParameterError
	if errors.As(err, &paramErr) {
		return http.StatusBadRequest
	}
	var schemaErr *ingest.SchemaError
	if errors.As(err, &schemaErr) {
		return http.StatusBadGateway
	}
	var fetchErr *upstream.FetchError
	if errors.As(err, &fetchErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
