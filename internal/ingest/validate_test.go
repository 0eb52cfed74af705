package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pangancache/internal/upstream"
)

func validEntry() map[string]any {
	return map[string]any{
		"Komoditas_id": 27,
		"Komoditas":    "Beras Premium",
		"Tahun":        2024,
		"today_province_price": map[string]any{
			"satuan": "Rp./Kg",
		},
		"Jan": 13228,
		"Feb": 13487,
	}
}

func validPayload() upstream.Payload {
	return upstream.Payload{
		"request_data": map[string]any{"level_harga_id": 3},
		"data": map[string]any{
			"2024": []any{validEntry()},
		},
	}
}

func asSchemaError(t *testing.T, err error) *SchemaError {
	t.Helper()
	require.Error(t, err)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	return schemaErr
}

func TestValidatePayloadAccepts(t *testing.T) {
	require.NoError(t, ValidatePayload(validPayload()))
}

func TestValidatePayloadRejectsNil(t *testing.T) {
	schemaErr := asSchemaError(t, ValidatePayload(nil))
	assert.Equal(t, "payload", schemaErr.Key)
}

func TestValidatePayloadRequiresRequestDataEcho(t *testing.T) {
	payload := validPayload()
	delete(payload, "request_data")

	schemaErr := asSchemaError(t, ValidatePayload(payload))
	assert.Equal(t, "request_data", schemaErr.Key)
}

func TestValidatePayloadRequiresBucketList(t *testing.T) {
	payload := validPayload()
	payload["data"].(map[string]any)["2024"] = map[string]any{"oops": true}

	schemaErr := asSchemaError(t, ValidatePayload(payload))
	assert.Equal(t, "2024", schemaErr.Key)
	assert.Contains(t, schemaErr.Reason, "not a list")
}

func TestValidatePayloadRejectsUnknownMonthKey(t *testing.T) {
	entry := validEntry()
	entry["Aug"] = 14000 // English abbreviation, not in the source locale
	payload := validPayload()
	payload["data"].(map[string]any)["2024"] = []any{entry}

	schemaErr := asSchemaError(t, ValidatePayload(payload))
	assert.Equal(t, "Aug", schemaErr.Key)
	assert.NotEmpty(t, schemaErr.Sample)
}

func TestValidatePayloadRequiresIdentifier(t *testing.T) {
	entry := validEntry()
	delete(entry, "Komoditas_id")
	payload := validPayload()
	payload["data"].(map[string]any)["2024"] = []any{entry}

	schemaErr := asSchemaError(t, ValidatePayload(payload))
	assert.Equal(t, "Komoditas_id", schemaErr.Key)
}

func TestValidatePayloadRequiresUnit(t *testing.T) {
	entry := validEntry()
	delete(entry, "today_province_price")
	payload := validPayload()
	payload["data"].(map[string]any)["2024"] = []any{entry}

	schemaErr := asSchemaError(t, ValidatePayload(payload))
	assert.Equal(t, "today_province_price", schemaErr.Key)
}

func TestSchemaErrorSampleIsTruncated(t *testing.T) {
	entry := validEntry()
	entry["Komoditas"] = strings.Repeat("x", 4096)
	entry["Aug"] = 1
	payload := validPayload()
	payload["data"].(map[string]any)["2024"] = []any{entry}

	err := ValidatePayload(payload)
	var schemaErr *SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.LessOrEqual(t, len(schemaErr.Sample), maxSampleBytes+len("..."))
}
