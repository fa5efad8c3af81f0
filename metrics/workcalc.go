/*
workcalc.go - Project aggregate ("work calculation")

PURPOSE:
  Computes the financial/hour bundle for one project from a consistent
  snapshot of the entity store. Pure function, no side effects; the
  engine layers caching on top.

ALGORITHM (per person, then summed):
  overbooked     = max(0, totalBooked - budget)        [hours]
  wellBooked     = totalBooked - overbooked
  leftToBook     = budget - wellBooked
  turnover       = wellBooked * tariff                 [money]
  loss           = overbooked * tariff
  leftToTurnOver = leftToBook * tariff

MONEY SIDE:
  personCosts           = sum(tariff * budget)   (budgeted, not realized)
  weightedAverageTariff = personCosts / sum(budget), 0 if sum(budget)=0
  realizedAverageTariff = sum(turnover) / sum(booked), 0 if sum(booked)=0
  budget items: positive amount -> costs, negative -> income; mirrored
  transfers invert the sign relative to the owning side
  costs            += profit + softwareDevelopment
  netContractAmount = contractAmount - sum(estimates)
  totalCosts        = costs + (personCosts + reservation) + sum(estimates)
  totalIncome       = contractAmount + income
  leftToDishOut     = totalIncome - totalCosts, clamped to exactly 0
                      inside (-1, 1) to absorb rounding noise from
                      non-integer contract amounts

EXAMPLE:
  Person with assignment(hours=10, tariff=50) books 12 hours total:
  overbooked=2, wellBooked=10, turnover=500, loss=100, leftToBook=0.

SEE ALSO:
  - personyear.go: The per-person yearly rollup
  - engine.go: Snapshot gathering and caching
*/
package metrics

import "github.com/shopspring/decimal"

// =============================================================================
// SNAPSHOT - Everything the calculation reads, gathered up front
// =============================================================================

// ProjectSnapshot is a consistent read of everything feeding one
// project's aggregates.
type ProjectSnapshot struct {
	Project     Project
	Assignments []WorkAssignment
	Bookings    []Booking // all time
	BudgetItems []BudgetItem
	Transfers   []BudgetItem // items owned elsewhere targeting this project
	Estimates   []ThirdPartyEstimate
	Payables    []Payable
	Invoices    []Invoice
}

// =============================================================================
// RESULT BUNDLE
// =============================================================================

// ProjectMetrics is the flat bundle of named aggregates for a project.
// Hours and money are minor-unit-free decimals in the reporting
// currency.
type ProjectMetrics struct {
	ProjectID ProjectID

	// Hours
	Budget      decimal.Decimal
	TotalBooked decimal.Decimal
	Overbooked  decimal.Decimal
	WellBooked  decimal.Decimal
	LeftToBook  decimal.Decimal

	// Money derived from hours
	Turnover       decimal.Decimal
	Loss           decimal.Decimal
	LeftToTurnOver decimal.Decimal

	// Tariffs
	PersonCosts           decimal.Decimal
	WeightedAverageTariff decimal.Decimal
	RealizedAverageTariff decimal.Decimal

	// Budget items and records
	Costs      decimal.Decimal
	Income     decimal.Decimal
	ThirdParty decimal.Decimal // sum of third-party estimates
	Invoiced   decimal.Decimal
	Payables   decimal.Decimal

	// Contract
	NetContractAmount decimal.Decimal
	TotalCosts        decimal.Decimal
	TotalIncome       decimal.Decimal

	OverbookedPercentage int64
	LeftToDishOut        decimal.Decimal
}

// =============================================================================
// CALCULATION
// =============================================================================

// CalculateProject computes the project bundle from a snapshot.
func CalculateProject(s ProjectSnapshot) ProjectMetrics {
	m := ProjectMetrics{ProjectID: s.Project.ID}

	// Booked hours per person, summed across all time. Bookings by
	// persons without an assignment count against a zero budget.
	bookedBy := make(map[PersonID]decimal.Decimal)
	for _, b := range s.Bookings {
		bookedBy[b.Person] = bookedBy[b.Person].Add(b.Hours)
	}

	seen := make(map[PersonID]bool, len(s.Assignments))
	for _, wa := range s.Assignments {
		seen[wa.Person] = true
		m.accumulatePerson(bookedBy[wa.Person], wa.Hours, wa.Tariff)
	}
	for person, booked := range bookedBy {
		if !seen[person] {
			m.accumulatePerson(booked, decimal.Zero, decimal.Zero)
		}
	}

	m.WeightedAverageTariff = ratio(m.PersonCosts, m.Budget, decimal.Zero)
	m.RealizedAverageTariff = ratio(m.Turnover, m.TotalBooked, decimal.Zero)

	// Budget items: positive = cost, negative = income. Incoming
	// transfers invert the sign relative to the owning side.
	for _, item := range s.BudgetItems {
		if item.Amount.IsPositive() {
			m.Costs = m.Costs.Add(item.Amount)
		} else {
			m.Income = m.Income.Add(item.Amount.Neg())
		}
	}
	for _, item := range s.Transfers {
		if item.Amount.IsPositive() {
			m.Income = m.Income.Add(item.Amount)
		} else {
			m.Costs = m.Costs.Add(item.Amount.Neg())
		}
	}
	m.Costs = m.Costs.Add(s.Project.Profit).Add(s.Project.SoftwareDevelopment)

	for _, e := range s.Estimates {
		m.ThirdParty = m.ThirdParty.Add(e.Amount)
	}
	for _, p := range s.Payables {
		m.Payables = m.Payables.Add(p.Amount)
	}
	for _, inv := range s.Invoices {
		m.Invoiced = m.Invoiced.Add(inv.Amount)
	}

	m.NetContractAmount = s.Project.ContractAmount.Sub(m.ThirdParty)
	m.TotalCosts = m.Costs.Add(m.PersonCosts.Add(s.Project.Reservation)).Add(m.ThirdParty)
	m.TotalIncome = s.Project.ContractAmount.Add(m.Income)

	if m.Budget.IsZero() {
		if m.Overbooked.IsPositive() {
			m.OverbookedPercentage = 100
		}
	} else {
		m.OverbookedPercentage = pct(m.Overbooked, m.Budget, 0)
	}

	m.LeftToDishOut = dishOut(m.TotalIncome.Sub(m.TotalCosts))
	return m
}

func (m *ProjectMetrics) accumulatePerson(booked, budget, tariff decimal.Decimal) {
	overbooked := maxZero(booked.Sub(budget))
	wellBooked := booked.Sub(overbooked)
	leftToBook := budget.Sub(wellBooked)

	m.Budget = m.Budget.Add(budget)
	m.TotalBooked = m.TotalBooked.Add(booked)
	m.Overbooked = m.Overbooked.Add(overbooked)
	m.WellBooked = m.WellBooked.Add(wellBooked)
	m.LeftToBook = m.LeftToBook.Add(leftToBook)

	m.Turnover = m.Turnover.Add(wellBooked.Mul(tariff))
	m.Loss = m.Loss.Add(overbooked.Mul(tariff))
	m.LeftToTurnOver = m.LeftToTurnOver.Add(leftToBook.Mul(tariff))
	m.PersonCosts = m.PersonCosts.Add(budget.Mul(tariff))
}

// dishOut clamps |v| < 1 to exactly 0 so rounding noise from
// non-integer contract amounts never shows as money left to dish out.
func dishOut(v decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if v.Abs().LessThan(one) {
		return decimal.Zero
	}
	return v
}
