package ingest

import (
	"sort"
	"strconv"

	"pangancache/internal/checksum"
	"pangancache/internal/model"
	"pangancache/internal/upstream"
)

// NormalizePayload flattens a validated payload into monthly price
// candidates, one per (commodity, present month) pair inside the requested
// window, each already fingerprinted. It also reports the distinct
// commodities the batch references so the dimension seeder can run first.
//
// Normalization is deliberately more lenient than validation: a bucket key
// that is not a year is skipped, an entry without an identifier is skipped,
// and absent or null month values are silently treated as "no data". One bad
// entry never fails the batch.
func NormalizePayload(payload upstream.Payload, params model.FetchParams) ([]model.PriceRow, []model.Commodity) {
	data, ok := payload["data"].(map[string]any)
	if !ok {
		return nil, nil
	}

	years := make([]int, 0, len(data))
	for key := range data {
		year, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		years = append(years, year)
	}
	sort.Ints(years)

	province := params.Province()
	rows := make([]model.PriceRow, 0)
	seen := make(map[string]struct{})
	commodities := make([]model.Commodity, 0)

	for _, year := range years {
		entries, ok := data[strconv.Itoa(year)].([]any)
		if !ok {
			continue
		}
		for _, item := range entries {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			commodityID, ok := getString(entry, "Komoditas_id")
			if !ok {
				continue
			}
			name, ok := getString(entry, "Komoditas")
			if !ok {
				name = commodityID
			}
			unit := entryUnit(entry)

			emitted := 0
			for _, monthKey := range monthOrder {
				value, present := entry[monthKey]
				if !present || value == nil {
					continue
				}
				price, ok := parseDecimal(value)
				if !ok {
					continue
				}
				periodStart, periodEnd := monthEdges(year, monthNumbers[monthKey])
				if periodStart.Before(params.PeriodStart) || periodEnd.After(params.PeriodEnd) {
					// Keep only months fully inside the requested window.
					continue
				}
				rows = append(rows, model.PriceRow{
					CommodityID: commodityID,
					ProvinceID:  province,
					LevelID:     params.LevelID,
					PeriodStart: periodStart,
					PeriodEnd:   periodEnd,
					Price:       price,
					Unit:        unit,
					Checksum:    checksum.Price(price, unit, params.LevelID, periodStart, periodEnd, commodityID),
				})
				emitted++
			}

			if emitted > 0 {
				if _, dup := seen[commodityID]; !dup {
					seen[commodityID] = struct{}{}
					commodities = append(commodities, model.Commodity{ID: commodityID, Name: name})
				}
			}
		}
	}

	return rows, commodities
}

// entryUnit reads the verbatim unit string. Units are never normalized or
// converted across commodities.
func entryUnit(entry map[string]any) string {
	prices, ok := entry["today_province_price"].(map[string]any)
	if !ok {
		return ""
	}
	unit, _ := prices["satuan"].(string)
	return unit
}
