/*
Package generic provides the domain-agnostic primitives of the reconciliation engine.

PURPOSE:
  Rental contracts, fleet lists, dealer bookings and toll/parking logs all arrive
  as loosely shaped spreadsheet rows. This package holds the pieces every dataset
  needs before any domain rule runs: row values, key normalization, header alias
  resolution, temporal parsing/formatting, intervals and the error taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Row: One tabular record as produced by file ingestion (header -> value)
  - Text: Lossless-enough stringification of a cell value for display and keys
  - ParseAmount: Cell value -> decimal.Decimal (never float arithmetic on money)

DESIGN PRINCIPLES:
  1. Resolve once: headers are resolved into a Schema per dataset, not per access
  2. Never fail a batch: per-cell parse failures yield "absent", not errors
  3. Precision: amounts use decimal.Decimal

SEE ALSO:
  - keys.go: Plate normalization and header alias lookup
  - time.go: Temporal Value Resolver
  - period.go: Interval and DateRange predicates
  - schema.go: Resolved header schema
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ROW - One record from an uploaded dataset
// =============================================================================

// Row maps a header name to its cell value. Values are whatever the ingestion
// layer produced: string, float64 (spreadsheet numbers), time.Time or nil.
type Row map[string]any

// Headers returns the union of header names across rows, in first-seen order.
func Headers(rows []Row) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

// Text renders a cell value as a trimmed string. Whole floats render without
// a decimal point so numeric plates and contract numbers survive as keys.
func Text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return formatFloat(val)
	case float32:
		return formatFloat(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case time.Time:
		return FormatDateTime(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// =============================================================================
// AMOUNT - Monetary value of a charge
// =============================================================================

// ParseAmount converts a cell value into a decimal. Thousands separators and
// currency prefixes such as "AED" are tolerated. Returns false when the value
// holds no number.
func ParseAmount(v any) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case nil:
		return decimal.Zero, false
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	case decimal.Decimal:
		return val, true
	}

	s := strings.ToUpper(Text(v))
	s = strings.TrimPrefix(s, "AED")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
