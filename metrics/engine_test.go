package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/financials-engine/cache"
	"github.com/warp/financials-engine/metrics"
	"github.com/warp/financials-engine/metrics/store"
)

// countingStore wraps the memory store and counts snapshot reads, so
// tests can tell a cache hit from a recomputation.
type countingStore struct {
	*store.Memory
	projectReads int
	bookingReads int
}

func (c *countingStore) BookingsByProject(ctx context.Context, id metrics.ProjectID) ([]metrics.Booking, error) {
	c.bookingReads++
	return c.Memory.BookingsByProject(ctx, id)
}

func (c *countingStore) AssignmentsByPerson(ctx context.Context, id metrics.PersonID) ([]metrics.WorkAssignment, error) {
	c.projectReads++
	return c.Memory.AssignmentsByPerson(ctx, id)
}

// newTestWorld builds a store with 2025 buckets, one person with a rate
// history, one project and one assignment.
func newTestWorld(t *testing.T) (*countingStore, *metrics.Engine) {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	require.NoError(t, mem.SaveBuckets(ctx, metrics.GenerateBuckets(
		date(2025, time.January, 1), date(2025, time.December, 31))))

	person := &metrics.Person{ID: "p", Name: "Pat"}
	require.NoError(t, mem.SavePerson(ctx, person))
	require.NoError(t, mem.SaveRates(ctx, "p", []metrics.RateEntry{{
		EffectiveFrom: date(2024, time.January, 1),
		WeeklyHours:   dec(40),
		Target:        dec(120000),
		Tariff:        dec(95),
	}}))

	project := &metrics.Project{ID: "x", Code: "X-001", ContractAmount: dec(50000)}
	require.NoError(t, mem.SaveProject(ctx, project))

	wa := assignment("x", "p", 100, 95)
	require.NoError(t, mem.SaveAssignment(ctx, &wa))

	cs := &countingStore{Memory: mem}
	engine := &metrics.Engine{
		Store: cs,
		Registry: &metrics.Registry{
			Store: mem,
			Now:   func() time.Time { return date(2025, time.June, 11) },
		},
		Projects:    cache.NewMemory[metrics.ProjectMetrics](),
		PersonYears: cache.NewMemory[metrics.PersonYearMetrics](),
		Targets:     cache.NewMemory[decimal.Decimal](),
	}
	return cs, engine
}

// =============================================================================
// CACHING BEHAVIOR
// =============================================================================

func TestEngine_ProjectMetricsSecondCallServedFromCache(t *testing.T) {
	// GIVEN: A project with one booking
	// WHEN: Asking for its metrics twice with no intervening change
	// THEN: Identical bundles, and the second call reads nothing

	ctx := context.Background()
	cs, engine := newTestWorld(t)

	b := booking("x", "p", 2025, 10, 12)
	require.NoError(t, cs.Memory.SaveBooking(ctx, &b))

	first, err := engine.ProjectMetrics(ctx, "x")
	require.NoError(t, err)
	reads := cs.bookingReads

	second, err := engine.ProjectMetrics(ctx, "x")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, reads, cs.bookingReads, "second call should not hit the store")
	assertDec(t, 12, first.TotalBooked, "totalBooked")
}

func TestEngine_NewBookingInvalidatesThroughCounter(t *testing.T) {
	// GIVEN: A cached project bundle
	// WHEN: A new booking is saved (which bumps the project's counter)
	// THEN: The next read recomputes under a fresh key and reflects the
	//       booking; no explicit delete happens anywhere

	ctx := context.Background()
	cs, engine := newTestWorld(t)

	b1 := booking("x", "p", 2025, 10, 8)
	require.NoError(t, cs.Memory.SaveBooking(ctx, &b1))

	stale, err := engine.ProjectMetrics(ctx, "x")
	require.NoError(t, err)
	assertDec(t, 8, stale.TotalBooked, "totalBooked before change")
	cachedEntries := engine.Projects.Size()

	b2 := booking("x", "p", 2025, 11, 4)
	require.NoError(t, cs.Memory.SaveBooking(ctx, &b2))

	fresh, err := engine.ProjectMetrics(ctx, "x")
	require.NoError(t, err)
	assertDec(t, 12, fresh.TotalBooked, "totalBooked after change")

	// The stale entry is still in the cache, just unreachable.
	assert.Equal(t, cachedEntries+1, engine.Projects.Size())
}

func TestEngine_ProjectSaveInvalidatesPersonYear(t *testing.T) {
	// GIVEN: A cached person-year bundle fed by an external project
	// WHEN: The project itself is resaved with a changed flag
	// THEN: Every assignee's counter has moved, so the next person-year
	//       read recomputes and sees the flag

	ctx := context.Background()
	cs, engine := newTestWorld(t)

	b := booking("x", "p", 2025, 10, 5)
	require.NoError(t, cs.Memory.SaveBooking(ctx, &b))

	before, err := engine.PersonYearMetrics(ctx, "p", 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(100), before.BillablePercentage)

	flipped := &metrics.Project{ID: "x", Code: "X-001", Internal: true, ContractAmount: dec(50000)}
	require.NoError(t, cs.Memory.SaveProject(ctx, flipped))

	after, err := engine.PersonYearMetrics(ctx, "p", 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.BillablePercentage,
		"internal hours must stop counting as billable after the resave")
	assertDec(t, 5, after.BookedInternal, "bookedInternal")
}

func TestEngine_NilCachesDegradeToAlwaysMiss(t *testing.T) {
	// A missing cache backend must never fail a read.

	ctx := context.Background()
	cs, engine := newTestWorld(t)
	engine.Projects = nil
	engine.PersonYears = nil
	engine.Targets = nil

	b := booking("x", "p", 2025, 10, 12)
	require.NoError(t, cs.Memory.SaveBooking(ctx, &b))

	first, err := engine.ProjectMetrics(ctx, "x")
	require.NoError(t, err)
	second, err := engine.ProjectMetrics(ctx, "x")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Greater(t, cs.bookingReads, 1, "every call should recompute")

	_, err = engine.PersonYearMetrics(ctx, "p", 2025)
	require.NoError(t, err)
	target, err := engine.YearTarget(ctx, "p", 2025)
	require.NoError(t, err)
	assertDec(t, 120000, target, "target")
}

func TestEngine_UnknownEntitiesSurfaceNotFound(t *testing.T) {
	ctx := context.Background()
	_, engine := newTestWorld(t)

	_, err := engine.ProjectMetrics(ctx, "nope")
	assert.ErrorIs(t, err, metrics.ErrProjectNotFound)

	_, err = engine.PersonYearMetrics(ctx, "nobody", 2025)
	assert.ErrorIs(t, err, metrics.ErrPersonNotFound)
}

// =============================================================================
// PERSON-YEAR AND TARGET
// =============================================================================

func TestEngine_PersonYearMetricsEndToEnd(t *testing.T) {
	ctx := context.Background()
	cs, engine := newTestWorld(t)

	b1 := booking("x", "p", 2024, 53, 8) // prior year
	require.NoError(t, cs.Memory.SaveBooking(ctx, &b1))
	b2 := booking("x", "p", 2025, 10, 30)
	require.NoError(t, cs.Memory.SaveBooking(ctx, &b2))

	m, err := engine.PersonYearMetrics(ctx, "p", 2025)
	require.NoError(t, err)

	assertDec(t, 30, m.TotalBooked, "totalBooked")
	assertDec(t, 0, m.Overbooked, "overbooked")
	assertDec(t, 30, m.BookedExternal, "bookedExternal")
	assertDec(t, 120000, m.Target, "target")
	// leftToBook = 100 - (30+8)
	assertDec(t, 62, m.LeftToBook, "leftToBook")
}

func TestEngine_PersonYearSkipsHourlessProjects(t *testing.T) {
	ctx := context.Background()
	cs, engine := newTestWorld(t)

	hourless := &metrics.Project{ID: "fixed", Code: "F-001", Hourless: true}
	require.NoError(t, cs.Memory.SaveProject(ctx, hourless))
	wa := assignment("fixed", "p", 50, 80)
	require.NoError(t, cs.Memory.SaveAssignment(ctx, &wa))
	b := booking("fixed", "p", 2025, 10, 20)
	require.NoError(t, cs.Memory.SaveBooking(ctx, &b))

	m, err := engine.PersonYearMetrics(ctx, "p", 2025)
	require.NoError(t, err)

	assert.True(t, m.TotalBooked.IsZero(), "hourless project hours leaked in: %s", m.TotalBooked)
}

func TestEngine_YearTargetSurvivesBookingChurn(t *testing.T) {
	// GIVEN: A cached year target
	// WHEN: A booking bumps the person's main counter
	// THEN: The target is still served from cache; only rate changes
	//       address a new target key

	ctx := context.Background()
	cs, engine := newTestWorld(t)

	_, err := engine.YearTarget(ctx, "p", 2025)
	require.NoError(t, err)
	entries := engine.Targets.Size()

	b := booking("x", "p", 2025, 12, 6)
	require.NoError(t, cs.Memory.SaveBooking(ctx, &b))

	_, err = engine.YearTarget(ctx, "p", 2025)
	require.NoError(t, err)
	assert.Equal(t, entries, engine.Targets.Size(), "booking churn must not grow the target cache")

	// A rate change does address a new key.
	require.NoError(t, cs.Memory.SaveRates(ctx, "p", []metrics.RateEntry{{
		EffectiveFrom: date(2024, time.January, 1),
		WeeklyHours:   dec(32),
		Target:        dec(90000),
		Tariff:        dec(95),
	}}))

	target, err := engine.YearTarget(ctx, "p", 2025)
	require.NoError(t, err)
	assertDec(t, 90000, target, "target after rate change")
	assert.Equal(t, entries+1, engine.Targets.Size())
}

func TestEngine_TargetUsesRateInEffectAtYearEnd(t *testing.T) {
	// The target is read as of the last bucket of the year, so a
	// mid-year raise counts and a next-year raise does not.

	ctx := context.Background()
	cs, engine := newTestWorld(t)

	require.NoError(t, cs.Memory.SaveRates(ctx, "p", []metrics.RateEntry{
		{EffectiveFrom: date(2024, time.January, 1), Target: dec(100000)},
		{EffectiveFrom: date(2025, time.July, 1), Target: dec(140000)},
		{EffectiveFrom: date(2026, time.January, 1), Target: dec(200000)},
	}))

	target, err := engine.YearTarget(ctx, "p", 2025)
	require.NoError(t, err)
	assertDec(t, 140000, target, "target")
}
