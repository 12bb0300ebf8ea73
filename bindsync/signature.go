package bindsync

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Signature is the composite natural key of an invoice, the fallback matching
// key when the identity column is absent or unmatched. All fields are strings
// so the struct stays comparable and usable as a map key.
type Signature struct {
	Date    string
	TaxID   string
	Total   string
	DocType string
}

// MakeSignature derives the signature from raw field values. Two inputs with
// equal derived tuples are the same logical document regardless of source.
func MakeSignature(date, taxID, total, docType any) Signature {
	return Signature{
		Date:    isoDate(toString(date)),
		TaxID:   strings.ToUpper(strings.TrimSpace(toString(taxID))),
		Total:   coerceTotal(total),
		DocType: strings.TrimSpace(toString(docType)),
	}
}

// NormalizeIdentity trims the declared unique identifier; blank means absent
// and never matches anything.
func NormalizeIdentity(v any) string {
	return strings.TrimSpace(toString(v))
}

// coerceTotal renders the amount at two decimal places, half away from zero.
// The rounding mode only has to be consistent: both sides of every comparison
// run through this function, so matching never depends on which mode is used.
// Unparsable or missing totals degrade to "0.00" rather than erroring; such
// documents over-match each other on signature, which is the accepted default.
func coerceTotal(v any) string {
	switch n := v.(type) {
	case nil:
		return "0.00"
	case float64:
		return decimal.NewFromFloat(n).Round(2).StringFixed(2)
	case float32:
		return decimal.NewFromFloat32(n).Round(2).StringFixed(2)
	case int:
		return decimal.NewFromInt(int64(n)).StringFixed(2)
	case int64:
		return decimal.NewFromInt(n).StringFixed(2)
	}
	s := strings.TrimSpace(toString(v))
	if s == "" {
		return "0.00"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "0.00"
	}
	return d.Round(2).StringFixed(2)
}

// isoDate normalizes a date-bearing string to YYYY-MM-DD using its first ten
// characters; values that do not parse pass through unchanged, and empty
// input yields the empty string so signatures stay comparable.
func isoDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

func toString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
