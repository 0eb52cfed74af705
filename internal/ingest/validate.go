package ingest

import (
	"encoding/json"

	"pangancache/internal/upstream"
)

// Sample renderings in SchemaError are capped so a malformed payload can
// never blow up log size.
const maxSampleBytes = 256

// ValidatePayload checks the raw fetched structure against the upstream
// shape contract: a request_data echo, a data map of year buckets, each
// bucket a list of commodity entries carrying an identifier, a name and a
// unit, and no month-like key outside the twelve recognized abbreviations.
// Any violation is a hard stop; completeness checks (missing months, absent
// values) are the Normalizer's business, not validation failures.
func ValidatePayload(payload upstream.Payload) error {
	if payload == nil {
		return &SchemaError{Key: "payload", Reason: "response is empty"}
	}

	if _, ok := payload["request_data"].(map[string]any); !ok {
		return &SchemaError{Key: "request_data", Reason: "missing or not an object"}
	}

	data, ok := payload["data"].(map[string]any)
	if !ok {
		return &SchemaError{Key: "data", Reason: "missing or not an object"}
	}

	for year, bucket := range data {
		entries, ok := bucket.([]any)
		if !ok {
			return &SchemaError{Key: year, Reason: "year bucket is not a list", Sample: truncatedSample(bucket)}
		}
		for _, item := range entries {
			entry, ok := item.(map[string]any)
			if !ok {
				return &SchemaError{Key: year, Reason: "commodity entry is not an object", Sample: truncatedSample(item)}
			}
			if err := validateEntry(entry); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateEntry(entry map[string]any) error {
	if _, ok := getString(entry, "Komoditas_id"); !ok {
		return &SchemaError{Key: "Komoditas_id", Reason: "commodity entry has no identifier", Sample: truncatedSample(entry)}
	}
	if _, ok := getString(entry, "Komoditas"); !ok {
		return &SchemaError{Key: "Komoditas", Reason: "commodity entry has no name", Sample: truncatedSample(entry)}
	}

	prices, ok := entry["today_province_price"].(map[string]any)
	if !ok {
		return &SchemaError{Key: "today_province_price", Reason: "commodity entry has no unit record", Sample: truncatedSample(entry)}
	}
	if _, ok := prices["satuan"].(string); !ok {
		return &SchemaError{Key: "satuan", Reason: "unit is missing or not a string", Sample: truncatedSample(entry)}
	}

	// Month values arrive as top-level three-letter keys; anything
	// three-letter that is not a recognized abbreviation means the feed
	// changed shape under us.
	for key := range entry {
		if len(key) != 3 {
			continue
		}
		if _, ok := monthNumbers[key]; !ok {
			return &SchemaError{Key: key, Reason: "unrecognized month key", Sample: truncatedSample(entry)}
		}
	}
	return nil
}

func truncatedSample(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	if len(raw) > maxSampleBytes {
		return string(raw[:maxSampleBytes]) + "..."
	}
	return string(raw)
}
