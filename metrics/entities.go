/*
entities.go - The persisted domain objects read by the engine

PURPOSE:
  Defines Person, Project, WorkAssignment, Booking, BudgetItem,
  ThirdPartyEstimate, Payable and Invoice. The engine only READS these;
  all mutation discipline lives in the store's write path, which must
  route every save through the Invalidator (see invalidate.go) so the
  generation counters move.

GENERATION COUNTERS:
  Person carries TWO counters for two cache freshness domains:
    Counter      - moves on every save of the person or of any booking,
                   assignment or project referencing them
    RatesCounter - moves only on changes to the historical rate/target
                   records, for cache families that need not react to
                   booking churn
  Project carries one Counter, moved by every entity feeding its
  financials (bookings, assignments, budget items, transfers, invoices,
  payables, estimates).

INVARIANT:
  An entity's counter is always >= the counter embedded in any cache
  entry currently considered valid for it.
*/
package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PERSON
// =============================================================================

// RateEntry is one record of a person's weekly-hours/target/tariff
// history. Entries apply from EffectiveFrom until superseded.
type RateEntry struct {
	EffectiveFrom time.Time
	WeeklyHours   decimal.Decimal
	Target        decimal.Decimal // yearly turnover target (money)
	Tariff        decimal.Decimal // default hourly tariff (money)
}

type Person struct {
	ID           PersonID
	Name         string
	Counter      uint64
	RatesCounter uint64
	Archived     bool
	Management   bool

	// Rate history, ordered by EffectiveFrom ascending.
	Rates []RateEntry
}

// RateAsOf returns the rate entry in effect on the given day, or nil if
// the history starts later.
func (p *Person) RateAsOf(day time.Time) *RateEntry {
	var found *RateEntry
	for i := range p.Rates {
		if p.Rates[i].EffectiveFrom.After(day) {
			break
		}
		found = &p.Rates[i]
	}
	return found
}

// =============================================================================
// PROJECT
// =============================================================================

type Project struct {
	ID      ProjectID
	Code    string
	Counter uint64

	Archived bool
	Internal bool // internal projects are non-billable in person-year splits
	Hidden   bool
	Hourless bool // excluded from hour-based person-year aggregates

	// Optional first/last bucket of the project's lifetime.
	Start *BucketRef
	End   *BucketRef

	ContractAmount      decimal.Decimal
	Reservation         decimal.Decimal
	Profit              decimal.Decimal
	SoftwareDevelopment decimal.Decimal

	// Leader/manager get an implicit zero-hours assignment on save.
	Leader  PersonID
	Manager PersonID
}

// ActiveInYear reports whether the project's bucket range overlaps the
// given calendar year. A missing boundary is open-ended.
func (p *Project) ActiveInYear(year int) bool {
	if p.Start != nil && p.Start.Year > year {
		return false
	}
	if p.End != nil && p.End.Year < year {
		return false
	}
	return true
}

// =============================================================================
// WORK ASSIGNMENT - The authoritative hour/tariff budget
// =============================================================================

// WorkAssignment holds the budgeted hours and tariff for one
// (project, person) pair. One per pair.
type WorkAssignment struct {
	Project ProjectID
	Person  PersonID
	Hours   decimal.Decimal // budget, the ceiling before "overbooked"
	Tariff  decimal.Decimal
}

// =============================================================================
// BOOKING - Hours actually worked/claimed
// =============================================================================

// Booking records hours claimed by a person against a project in one
// bucket. At most one per (person, project, bucket) in steady state.
type Booking struct {
	Project ProjectID
	Person  PersonID
	Bucket  BucketRef
	Hours   decimal.Decimal
}

// =============================================================================
// BUDGET ITEM - Costs, income and budget transfers
// =============================================================================

// BudgetItem carries money on a project: positive Amount is a cost to
// the project, negative is income. When TransferTarget is set the
// amount is mirrored on the target project with the inverse sign
// convention (a cost here is income there).
type BudgetItem struct {
	ID             string
	Project        ProjectID
	Description    string
	Amount         decimal.Decimal
	TransferTarget ProjectID // empty = not a transfer
}

// IsTransfer reports whether the item mirrors onto another project.
func (b BudgetItem) IsTransfer() bool { return b.TransferTarget != "" }

// =============================================================================
// COST/INCOME RECORDS - Each independently summable per project
// =============================================================================

type ThirdPartyEstimate struct {
	ID          string
	Project     ProjectID
	Description string
	Amount      decimal.Decimal
}

type Payable struct {
	ID          string
	Project     ProjectID
	Description string
	Amount      decimal.Decimal
}

type Invoice struct {
	ID          string
	Project     ProjectID
	Description string
	Amount      decimal.Decimal
}
