/*
invalidate.go - Centralized, dependency-aware counter bumping

PURPOSE:
  There is no explicit "invalidate" operation anywhere in this system.
  Staleness is prevented structurally: every cache key embeds the
  current generation counter(s) of the entities it depends on, so any
  relevant change produces a brand-new, never-colliding key and the old
  entry becomes garbage for the cache's eviction policy to collect.

  This file centralizes WHICH counters each mutation must move. Stores
  call exactly one OnXxxChanged method per mutation instead of
  scattering bump calls across entity save methods.

FAN-OUT RULES:
  booking      -> person + project
  assignment   -> person + project
  person       -> person
  rates        -> person + person rates counter
  project      -> project + every assigned person (flags and bucket
                  range feed the person-year aggregate)
  budget item  -> owning project (+ transfer target project)
  estimate     -> project
  payable      -> project
  invoice      -> project

SEE ALSO:
  - store.go: CounterStore contract and the atomicity caveat
  - cachekey.go: Where the counters end up
*/
package metrics

import "context"

// =============================================================================
// AFFECTED SET
// =============================================================================

// Affected lists the entities whose cached aggregates a mutation may
// touch. Returned so callers (and tests) can observe the fan-out.
type Affected struct {
	Persons     []PersonID
	Projects    []ProjectID
	RatePersons []PersonID // persons whose RatesCounter must move too
}

func (a *Affected) person(id PersonID) {
	if id == "" {
		return
	}
	for _, p := range a.Persons {
		if p == id {
			return
		}
	}
	a.Persons = append(a.Persons, id)
}

func (a *Affected) project(id ProjectID) {
	if id == "" {
		return
	}
	for _, p := range a.Projects {
		if p == id {
			return
		}
	}
	a.Projects = append(a.Projects, id)
}

// =============================================================================
// INVALIDATOR
// =============================================================================

// Invalidator routes mutations to counter bumps through a CounterStore.
type Invalidator struct {
	Counters CounterStore
}

func (iv *Invalidator) OnBookingChanged(ctx context.Context, b Booking) (Affected, error) {
	var a Affected
	a.person(b.Person)
	a.project(b.Project)
	return a, iv.apply(ctx, a)
}

func (iv *Invalidator) OnAssignmentChanged(ctx context.Context, wa WorkAssignment) (Affected, error) {
	var a Affected
	a.person(wa.Person)
	a.project(wa.Project)
	return a, iv.apply(ctx, a)
}

func (iv *Invalidator) OnPersonChanged(ctx context.Context, id PersonID) (Affected, error) {
	var a Affected
	a.person(id)
	return a, iv.apply(ctx, a)
}

// OnRatesChanged moves the narrow RatesCounter as well: the rate/target
// history feeds cache families that ignore booking churn.
func (iv *Invalidator) OnRatesChanged(ctx context.Context, id PersonID) (Affected, error) {
	var a Affected
	a.person(id)
	a.RatePersons = append(a.RatePersons, id)
	return a, iv.apply(ctx, a)
}

// OnProjectChanged covers the project itself plus every person holding
// a work assignment on it, including the zero-hours ones a save just
// created for leader/manager (see ManagementAssignments). Project flags
// and the bucket range feed each assignee's person-year aggregate, so
// all of their counters must move.
func (iv *Invalidator) OnProjectChanged(ctx context.Context, p Project, assignments []WorkAssignment) (Affected, error) {
	var a Affected
	a.project(p.ID)
	for _, wa := range assignments {
		a.person(wa.Person)
	}
	return a, iv.apply(ctx, a)
}

func (iv *Invalidator) OnBudgetItemChanged(ctx context.Context, item BudgetItem) (Affected, error) {
	var a Affected
	a.project(item.Project)
	a.project(item.TransferTarget)
	return a, iv.apply(ctx, a)
}

func (iv *Invalidator) OnEstimateChanged(ctx context.Context, e ThirdPartyEstimate) (Affected, error) {
	var a Affected
	a.project(e.Project)
	return a, iv.apply(ctx, a)
}

func (iv *Invalidator) OnPayableChanged(ctx context.Context, p Payable) (Affected, error) {
	var a Affected
	a.project(p.Project)
	return a, iv.apply(ctx, a)
}

func (iv *Invalidator) OnInvoiceChanged(ctx context.Context, inv Invoice) (Affected, error) {
	var a Affected
	a.project(inv.Project)
	return a, iv.apply(ctx, a)
}

func (iv *Invalidator) apply(ctx context.Context, a Affected) error {
	for _, id := range a.Persons {
		if err := iv.Counters.BumpPerson(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range a.RatePersons {
		if err := iv.Counters.BumpPersonRates(ctx, id); err != nil {
			return err
		}
	}
	for _, id := range a.Projects {
		if err := iv.Counters.BumpProject(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// IMPLICIT MANAGEMENT ASSIGNMENTS
// =============================================================================

// ManagementAssignments returns the zero-hours assignments a project
// save must create for its leader and manager when none exist yet. The
// store persists them (each bumping the person via OnProjectChanged).
func ManagementAssignments(p Project, existing []WorkAssignment) []WorkAssignment {
	has := make(map[PersonID]bool, len(existing))
	for _, wa := range existing {
		has[wa.Person] = true
	}

	var missing []WorkAssignment
	for _, id := range []PersonID{p.Leader, p.Manager} {
		if id == "" || has[id] {
			continue
		}
		has[id] = true
		missing = append(missing, WorkAssignment{Project: p.ID, Person: id})
	}
	return missing
}
