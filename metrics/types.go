/*
Package metrics provides the derived-financials computation engine.

PURPOSE:
  This package turns raw bookings, work assignments, budget items and
  invoices into financial/hour aggregates for a Project and for a
  Person-in-a-year, and avoids recomputing those (expensive,
  multi-aggregate) values on every read through a generation-counter
  keyed result cache.

KEY CONCEPTS IN THIS FILE (types.go):
  - PersonID/ProjectID/BucketID: Type-safe identifiers
  - Ratio helpers: the fixed fallback rules for zero denominators

DESIGN PRINCIPLES:
  1. Purity: both aggregate algorithms are pure functions of a snapshot
  2. Precision: uses decimal.Decimal to avoid floating-point errors
  3. Invalidation by construction: cache keys embed generation counters,
     so a changed entity is addressed by a brand-new key and stale
     entries become permanently unreachable (no explicit delete)

USAGE:
  engine := &metrics.Engine{Store: store, Registry: registry}
  bundle, err := engine.ProjectMetrics(ctx, "proj-42")

SEE ALSO:
  - workcalc.go: Project aggregate ("work calculation")
  - personyear.go: Person-Year aggregate ("person-year combination")
  - invalidate.go: Generation-counter bump fan-out
  - cachekey.go: Cache key construction and schema versioning
*/
package metrics

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PersonID string
type ProjectID string

// hundred is the scale factor for all percentage fields.
var hundred = decimal.NewFromInt(100)

// =============================================================================
// RATIO HELPERS - Fixed fallbacks instead of division errors
// =============================================================================
// The fallback on a zero denominator is context-specific and NOT uniform:
// percentages default to 0 when "no activity" reads as "nothing done"
// (overbooked%), and to 100 when it reads as "fully on target" (billable%,
// target%). Callers pick the fallback per field.

// ratio returns num/den, or fallback when den is zero.
func ratio(num, den, fallback decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return fallback
	}
	return num.Div(den)
}

// pct returns round(num/den*100) as an integer percentage, or fallback
// when den is zero.
func pct(num, den decimal.Decimal, fallback int64) int64 {
	if den.IsZero() {
		return fallback
	}
	return num.Mul(hundred).Div(den).Round(0).IntPart()
}

// maxZero clamps negative values to zero.
func maxZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
