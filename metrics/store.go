/*
store.go - Persistence interfaces between the engine and the database

PURPOSE:
  Defines the read surface the engine depends on (EntityStore) and the
  write surface the surrounding application uses (MutableStore).
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  BucketStore:  Time-bucket lookups (ordered, never deleted)
  EntityStore:  Read access to all domain entities; all the engine needs
  CounterStore: Generation-counter bumps, called by the Invalidator
  MutableStore: Saves; every Save routes through the Invalidator so the
                affected counters move as part of the entity's save

CONTRACT:
  Any write path that changes a value feeding a derived metric must,
  before returning, bump every entity whose cached aggregate could be
  affected - including transitively. Forgetting a bump produces
  silently stale results; it is a correctness-critical contract, not
  best-effort, and is not detectable at runtime.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - metrics/store/memory.go: In-memory for testing

SEE ALSO:
  - invalidate.go: The central bump fan-out
  - engine.go: Consumes EntityStore
*/
package metrics

import (
	"context"
	"time"
)

// =============================================================================
// BUCKET STORE
// =============================================================================

type BucketStore interface {
	// Bucket looks up one (year, week). Missing buckets return
	// ErrBucketNotFound; the engine never synthesizes them.
	Bucket(ctx context.Context, ref BucketRef) (*TimeBucket, error)

	// BucketOnOrBefore returns the most recent bucket whose FirstDay
	// is on or before the given day.
	BucketOnOrBefore(ctx context.Context, day time.Time) (*TimeBucket, error)

	// LastBucketOfYear returns the final bucket of a calendar year.
	LastBucketOfYear(ctx context.Context, year int) (*TimeBucket, error)

	// OffsetBucket returns the bucket n positions from ref in
	// (year, week) order; n may be negative.
	OffsetBucket(ctx context.Context, ref BucketRef, n int) (*TimeBucket, error)

	// SaveBuckets persists generated buckets. Existing (year, week)
	// rows are updated in place (DaysMissing backfills only).
	SaveBuckets(ctx context.Context, buckets []TimeBucket) error
}

// =============================================================================
// ENTITY STORE - Read surface consumed by the engine
// =============================================================================

type EntityStore interface {
	BucketStore

	Person(ctx context.Context, id PersonID) (*Person, error)
	Project(ctx context.Context, id ProjectID) (*Project, error)

	AssignmentsByProject(ctx context.Context, id ProjectID) ([]WorkAssignment, error)
	AssignmentsByPerson(ctx context.Context, id PersonID) ([]WorkAssignment, error)

	// BookingsByProject returns all bookings on a project across all time.
	BookingsByProject(ctx context.Context, id ProjectID) ([]Booking, error)

	// BookingsByPerson returns all of a person's bookings across all
	// projects and all time.
	BookingsByPerson(ctx context.Context, id PersonID) ([]Booking, error)

	BudgetItemsByProject(ctx context.Context, id ProjectID) ([]BudgetItem, error)

	// TransfersIntoProject returns budget items owned by OTHER projects
	// whose TransferTarget is this project.
	TransfersIntoProject(ctx context.Context, id ProjectID) ([]BudgetItem, error)

	EstimatesByProject(ctx context.Context, id ProjectID) ([]ThirdPartyEstimate, error)
	PayablesByProject(ctx context.Context, id ProjectID) ([]Payable, error)
	InvoicesByProject(ctx context.Context, id ProjectID) ([]Invoice, error)
}

// =============================================================================
// COUNTER STORE - Generation counter bumps
// =============================================================================

// CounterStore increments generation counters as part of the owning
// entity's row. Bumps are atomic per entity but are NOT wrapped in one
// transaction with the triggering save; a crash in between can leave a
// stale cache entry readable (accepted risk).
type CounterStore interface {
	BumpPerson(ctx context.Context, id PersonID) error
	BumpPersonRates(ctx context.Context, id PersonID) error
	BumpProject(ctx context.Context, id ProjectID) error
}

// =============================================================================
// MUTABLE STORE - Write surface for the surrounding application
// =============================================================================

type MutableStore interface {
	EntityStore
	CounterStore

	// SavePerson persists person fields (not rate history) and bumps
	// the person's Counter.
	SavePerson(ctx context.Context, p *Person) error

	// SaveRates replaces a person's rate history and bumps BOTH the
	// Counter and the RatesCounter.
	SaveRates(ctx context.Context, id PersonID, rates []RateEntry) error

	// SaveProject persists the project, auto-creates missing zero-hours
	// assignments for leader/manager, and bumps the project plus any
	// newly assigned persons.
	SaveProject(ctx context.Context, p *Project) error

	// SaveAssignment upserts by (project, person) and bumps both sides.
	SaveAssignment(ctx context.Context, a *WorkAssignment) error

	// SaveBooking upserts by (project, person, bucket) and bumps both
	// the person and the project.
	SaveBooking(ctx context.Context, b *Booking) error

	// SaveBudgetItem bumps the owning project and, for transfers, the
	// target project as well.
	SaveBudgetItem(ctx context.Context, item *BudgetItem) error

	SaveEstimate(ctx context.Context, e *ThirdPartyEstimate) error
	SavePayable(ctx context.Context, p *Payable) error
	SaveInvoice(ctx context.Context, inv *Invoice) error
}
