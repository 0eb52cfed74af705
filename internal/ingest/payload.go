package ingest

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Recognized month abbreviations in the source locale, in calendar order.
var monthOrder = []string{"Jan", "Feb", "Mar", "Apr", "Mei", "Jun", "Jul", "Agu", "Sep", "Okt", "Nov", "Des"}

var monthNumbers = map[string]time.Month{
	"Jan": time.January,
	"Feb": time.February,
	"Mar": time.March,
	"Apr": time.April,
	"Mei": time.May,
	"Jun": time.June,
	"Jul": time.July,
	"Agu": time.August,
	"Sep": time.September,
	"Okt": time.October,
	"Nov": time.November,
	"Des": time.December,
}

// monthEdges returns the first and last calendar day of (year, month) in the
// source's civil calendar. No timezone conversion is involved.
func monthEdges(year int, month time.Month) (time.Time, time.Time) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, -1)
	return start, end
}

func getString(row map[string]any, key string) (string, bool) {
	value, ok := row[key]
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	default:
		return "", false
	}
}

// parseDecimal extracts a month value. Nil and empty strings report !ok,
// which callers treat as "no data for that month".
func parseDecimal(value any) (decimal.Decimal, bool) {
	switch typed := value.(type) {
	case json.Number:
		parsed, err := decimal.NewFromString(typed.String())
		return parsed, err == nil
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return decimal.Decimal{}, false
		}
		parsed, err := decimal.NewFromString(trimmed)
		return parsed, err == nil
	case float64:
		return decimal.NewFromFloat(typed), true
	case int:
		return decimal.NewFromInt(int64(typed)), true
	case int64:
		return decimal.NewFromInt(typed), true
	default:
		return decimal.Decimal{}, false
	}
}
