/*
engine.go - The two query operations, with caching layered on top

PURPOSE:
  Exposes ProjectMetrics(projectID) and PersonYearMetrics(personID,
  year) to callers (the web/reporting layer, excluded from this
  module). The engine is stateless and side-effect-free aside from
  cache writes, so it is safe to call concurrently from multiple
  goroutines sharing the same caches.

FLOW:
  1. Load the entity (for its current generation counter)
  2. Build the cache key from counter(s) + current bucket + schema version
  3. Hit  -> return the stored bundle untouched
  4. Miss -> read a snapshot from the store, run the pure calculation,
             store and return

CACHE DEGRADATION:
  A nil cache is valid and means always-miss. The engine never fails a
  read because the cache is unavailable.

STAMPEDE:
  Concurrent misses for the same key are coalesced with singleflight.
  Results are idempotent, so this is purely an efficiency measure.
*/
package metrics

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/warp/financials-engine/cache"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine computes and caches the derived-metric bundles. Any of the
// cache fields may be nil (always-miss).
type Engine struct {
	Store    EntityStore
	Registry *Registry

	Projects    cache.Cache[ProjectMetrics]
	PersonYears cache.Cache[PersonYearMetrics]
	Targets     cache.Cache[decimal.Decimal]

	flight singleflight.Group
}

// ProjectMetrics returns the work-calculation bundle for a project.
func (e *Engine) ProjectMetrics(ctx context.Context, id ProjectID) (ProjectMetrics, error) {
	p, err := e.Store.Project(ctx, id)
	if err != nil {
		return ProjectMetrics{}, err
	}
	cur, err := e.Registry.Current(ctx)
	if err != nil {
		return ProjectMetrics{}, err
	}

	key := ProjectKey(p, cur.ID())
	if m, ok := cacheGet(e.Projects, key); ok {
		return m, nil
	}

	v, err, _ := e.flight.Do(key, func() (any, error) {
		snap, err := e.projectSnapshot(ctx, *p)
		if err != nil {
			return nil, err
		}
		m := CalculateProject(snap)
		cacheSet(e.Projects, key, m)
		return m, nil
	})
	if err != nil {
		return ProjectMetrics{}, err
	}
	return v.(ProjectMetrics), nil
}

// PersonYearMetrics returns the person-year combination bundle.
func (e *Engine) PersonYearMetrics(ctx context.Context, id PersonID, year int) (PersonYearMetrics, error) {
	p, err := e.Store.Person(ctx, id)
	if err != nil {
		return PersonYearMetrics{}, err
	}
	cur, err := e.Registry.Current(ctx)
	if err != nil {
		return PersonYearMetrics{}, err
	}

	key := PersonYearKey(p, year, cur.ID())
	if m, ok := cacheGet(e.PersonYears, key); ok {
		return m, nil
	}

	v, err, _ := e.flight.Do(key, func() (any, error) {
		snap, err := e.personYearSnapshot(ctx, *p, year)
		if err != nil {
			return nil, err
		}
		m := CalculatePersonYear(snap)
		cacheSet(e.PersonYears, key, m)
		return m, nil
	})
	if err != nil {
		return PersonYearMetrics{}, err
	}
	return v.(PersonYearMetrics), nil
}

// YearTarget returns a person's turnover target as of the last bucket
// of the year. This is the narrow cache family keyed only by the
// RatesCounter: booking churn never evicts it.
func (e *Engine) YearTarget(ctx context.Context, id PersonID, year int) (decimal.Decimal, error) {
	p, err := e.Store.Person(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}

	key := TargetKey(p, year)
	if t, ok := cacheGet(e.Targets, key); ok {
		return t, nil
	}

	t, err := e.yearTarget(ctx, *p, year)
	if err != nil {
		return decimal.Zero, err
	}
	cacheSet(e.Targets, key, t)
	return t, nil
}

// =============================================================================
// SNAPSHOT GATHERING
// =============================================================================

func (e *Engine) projectSnapshot(ctx context.Context, p Project) (ProjectSnapshot, error) {
	snap := ProjectSnapshot{Project: p}

	var err error
	if snap.Assignments, err = e.Store.AssignmentsByProject(ctx, p.ID); err != nil {
		return snap, err
	}
	if snap.Bookings, err = e.Store.BookingsByProject(ctx, p.ID); err != nil {
		return snap, err
	}
	if snap.BudgetItems, err = e.Store.BudgetItemsByProject(ctx, p.ID); err != nil {
		return snap, err
	}
	if snap.Transfers, err = e.Store.TransfersIntoProject(ctx, p.ID); err != nil {
		return snap, err
	}
	if snap.Estimates, err = e.Store.EstimatesByProject(ctx, p.ID); err != nil {
		return snap, err
	}
	if snap.Payables, err = e.Store.PayablesByProject(ctx, p.ID); err != nil {
		return snap, err
	}
	if snap.Invoices, err = e.Store.InvoicesByProject(ctx, p.ID); err != nil {
		return snap, err
	}
	return snap, nil
}

func (e *Engine) personYearSnapshot(ctx context.Context, p Person, year int) (PersonYearSnapshot, error) {
	snap := PersonYearSnapshot{Person: p, Year: year}

	target, err := e.yearTarget(ctx, p, year)
	if err != nil {
		return snap, err
	}
	snap.Target = target

	assignments, err := e.Store.AssignmentsByPerson(ctx, p.ID)
	if err != nil {
		return snap, err
	}
	bookings, err := e.Store.BookingsByPerson(ctx, p.ID)
	if err != nil {
		return snap, err
	}

	thisYear := make(map[ProjectID]decimal.Decimal)
	before := make(map[ProjectID]decimal.Decimal)
	for _, b := range bookings {
		switch {
		case b.Bucket.Year == year:
			thisYear[b.Project] = thisYear[b.Project].Add(b.Hours)
		case b.Bucket.Year < year:
			before[b.Project] = before[b.Project].Add(b.Hours)
		}
	}

	for _, wa := range assignments {
		proj, err := e.Store.Project(ctx, wa.Project)
		if err != nil {
			return snap, err
		}
		if proj.Hourless || !proj.ActiveInYear(year) {
			continue
		}
		snap.Projects = append(snap.Projects, PersonYearProject{
			Project:        proj.ID,
			Internal:       proj.Internal,
			Budget:         wa.Hours,
			Tariff:         wa.Tariff,
			BookedThisYear: thisYear[proj.ID],
			BookedBefore:   before[proj.ID],
		})
	}
	return snap, nil
}

// yearTarget reads the target in effect at the last bucket of the year.
// A missing bucket is a hard error: the maintenance routine must cover
// the operating range.
func (e *Engine) yearTarget(ctx context.Context, p Person, year int) (decimal.Decimal, error) {
	last, err := e.Store.LastBucketOfYear(ctx, year)
	if err != nil {
		return decimal.Zero, err
	}
	if r := p.RateAsOf(last.FirstDay); r != nil {
		return r.Target, nil
	}
	return decimal.Zero, nil
}

// =============================================================================
// NIL-SAFE CACHE ACCESS
// =============================================================================

func cacheGet[T any](c cache.Cache[T], key string) (T, bool) {
	if c == nil {
		var zero T
		return zero, false
	}
	return c.Get(key)
}

func cacheSet[T any](c cache.Cache[T], key string, value T) {
	if c != nil {
		c.Set(key, value)
	}
}
