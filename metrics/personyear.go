/*
personyear.go - Person-Year aggregate ("person-year combination")

PURPOSE:
  The yearly rollup of one person's booking/target/turnover performance
  across all their projects. Pure function of a snapshot; the engine
  layers caching on top.

OVERBOOKING ROLL-FORWARD:
  Overbooking is attributed to the current year only up to what was
  actually booked this year, even if the cumulative overrun happened
  earlier:

    bookedTillNow      = bookedThisYear + bookedBefore
    overbookedThisYear = min(max(0, bookedTillNow - budget), bookedThisYear)
    wellBookedThisYear = bookedThisYear - overbookedThisYear

  So a person booking 5 hours this year on a project already 20 hours
  over budget gets overbookedThisYear = 5, wellBookedThisYear = 0.

PROJECT FILTER:
  Only projects active in the year and not flagged hourless take part.
  Booked hours route to internal or external based on the project flag.

PERCENTAGE FALLBACKS (not uniform, reproduce exactly):
  overbooked%  -> 0 on zero booked ("nothing done")
  wellBooked%  -> 100 on zero booked
  billable%    -> 100 when internal and external are BOTH zero
  target%      -> 100 when target is zero

LAZY VALUES:
  TargetPercentage and LeftToTurnOver are derived from the cached
  bundle on access, never re-read from the store.
*/
package metrics

import "github.com/shopspring/decimal"

// =============================================================================
// SNAPSHOT
// =============================================================================

// PersonYearProject is one project's contribution to a person's year.
type PersonYearProject struct {
	Project        ProjectID
	Internal       bool
	Budget         decimal.Decimal // assignment hours
	Tariff         decimal.Decimal
	BookedThisYear decimal.Decimal
	BookedBefore   decimal.Decimal // prior years only
}

// PersonYearSnapshot is a consistent read of everything feeding one
// person-year combination. Target is resolved as of the last bucket of
// the year when the snapshot is gathered.
type PersonYearSnapshot struct {
	Person   Person
	Year     int
	Target   decimal.Decimal
	Projects []PersonYearProject
}

// =============================================================================
// RESULT BUNDLE
// =============================================================================

type PersonYearMetrics struct {
	PersonID PersonID
	Year     int

	// Hours
	TotalBooked    decimal.Decimal
	Overbooked     decimal.Decimal
	WellBooked     decimal.Decimal
	LeftToBook     decimal.Decimal
	BookedInternal decimal.Decimal
	BookedExternal decimal.Decimal

	// Money
	Turnover decimal.Decimal
	Target   decimal.Decimal

	OverbookedPercentage  int64
	WellBookedPercentage  int64
	BillablePercentage    int64
	NonBillablePercentage int64
}

// TargetPercentage is computed lazily from the cached bundle:
// round(turnover/target*100), 100 when the target is zero.
func (m PersonYearMetrics) TargetPercentage() int64 {
	return pct(m.Turnover, m.Target, 100)
}

// LeftToTurnOver is computed lazily from the cached bundle:
// max(target - turnover, 0).
func (m PersonYearMetrics) LeftToTurnOver() decimal.Decimal {
	return maxZero(m.Target.Sub(m.Turnover))
}

// =============================================================================
// CALCULATION
// =============================================================================

// CalculatePersonYear computes the person-year bundle from a snapshot.
func CalculatePersonYear(s PersonYearSnapshot) PersonYearMetrics {
	m := PersonYearMetrics{
		PersonID: s.Person.ID,
		Year:     s.Year,
		Target:   s.Target,
	}

	for _, p := range s.Projects {
		bookedTillNow := p.BookedThisYear.Add(p.BookedBefore)
		overbooked := decimal.Min(maxZero(bookedTillNow.Sub(p.Budget)), p.BookedThisYear)
		wellBooked := p.BookedThisYear.Sub(overbooked)

		m.TotalBooked = m.TotalBooked.Add(p.BookedThisYear)
		m.Overbooked = m.Overbooked.Add(overbooked)
		m.WellBooked = m.WellBooked.Add(wellBooked)
		m.LeftToBook = m.LeftToBook.Add(maxZero(p.Budget.Sub(bookedTillNow)))
		m.Turnover = m.Turnover.Add(wellBooked.Mul(p.Tariff))

		if p.Internal {
			m.BookedInternal = m.BookedInternal.Add(p.BookedThisYear)
		} else {
			m.BookedExternal = m.BookedExternal.Add(p.BookedThisYear)
		}
	}

	m.OverbookedPercentage = pct(m.Overbooked, m.TotalBooked, 0)
	m.WellBookedPercentage = pct(m.WellBooked, m.TotalBooked, 100)
	m.BillablePercentage = pct(m.BookedExternal, m.BookedInternal.Add(m.BookedExternal), 100)
	m.NonBillablePercentage = 100 - m.BillablePercentage
	return m
}
