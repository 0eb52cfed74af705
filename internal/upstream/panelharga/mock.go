package panelharga

import (
	"context"
	"strings"

	"pangancache/internal/model"
	"pangancache/internal/upstream"
)

// Mock serves a fixed canned payload with no network access. It satisfies the
// same shape contract as the real response and is deterministic, so offline
// runs and tests behave identically across machines.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) Fetch(_ context.Context, params model.FetchParams) (upstream.Payload, error) {
	payload, err := decodePayload(strings.NewReader(mockBody))
	if err != nil {
		return nil, err
	}
	payload["request_data"] = map[string]any{
		"start_year":     params.StartYear,
		"end_year":       params.EndYear,
		"period_date":    formatPeriod(params.PeriodStart, params.PeriodEnd),
		"province_id":    params.ProvinceID,
		"level_harga_id": params.LevelID,
	}
	return payload, nil
}

const mockBody = `{
  "request_data": {},
  "data": {
    "2024": [
      {
        "Komoditas_id": 27,
        "Komoditas": "Beras Premium",
        "Tahun": 2024,
        "today_province_price": {
          "satuan": "Rp./Kg",
          "hargatertinggi": 20000,
          "provinsitertinggi": "Papua Barat",
          "hargaterendah": 14500,
          "provinsiterendah": "D.I Yogyakarta",
          "hargaratarata": 16067
        },
        "Jan": 13228,
        "Feb": 13487,
        "Mar": 13612,
        "Apr": 13702,
        "Mei": 13668,
        "Jun": 13656,
        "Jul": 13663,
        "Agu": 13830,
        "Sep": 14554,
        "Okt": 15008,
        "Nov": 15045,
        "Des": 15056
      },
      {
        "Komoditas_id": 28,
        "Komoditas": "Beras Medium",
        "Tahun": 2024,
        "today_province_price": {
          "satuan": "Rp./Kg",
          "hargatertinggi": 18000,
          "provinsitertinggi": "Papua Barat",
          "hargaterendah": 12807,
          "provinsiterendah": "Jawa Timur",
          "hargaratarata": 13777
        },
        "Jan": 11609,
        "Feb": 11821,
        "Mar": 11891,
        "Apr": 11962,
        "Mei": 11934,
        "Jun": 11906,
        "Jul": 11969,
        "Agu": 12145,
        "Sep": 12908,
        "Okt": 13280,
        "Nov": 13236,
        "Des": 13254
      }
    ]
  }
}`

var _ upstream.Client = (*Mock)(nil)
