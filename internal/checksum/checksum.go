// Package checksum fingerprints price facts so re-ingestion can tell a
// changed value from an unchanged one without a field-by-field diff.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Price computes a stable SHA-256 digest over the mutable fields of one
// price fact. The encoding is canonical: fixed field order, "|" separators,
// ISO dates, prices with trailing zeros stripped. Independent runs over
// identical data must produce identical digests on any machine.
func Price(price decimal.Decimal, unit string, levelID int, periodStart, periodEnd time.Time, commodityID string) string {
	parts := []string{
		canonicalDecimal(price),
		unit,
		strconv.Itoa(levelID),
		periodStart.Format(dateLayout),
		periodEnd.Format(dateLayout),
		commodityID,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// canonicalDecimal renders a decimal without trailing fractional zeros, so
// 14000, 14000.0 and 14000.00 all fingerprint identically.
func canonicalDecimal(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
