// Package store provides EntityStore implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/financials-engine/metrics"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements metrics.MutableStore. Every Save routes through the
// central Invalidator so generation counters move exactly as they would
// against the production store.
type Memory struct {
	mu          sync.RWMutex
	buckets     []metrics.TimeBucket // sorted by (year, week)
	persons     map[metrics.PersonID]*metrics.Person
	projects    map[metrics.ProjectID]*metrics.Project
	assignments map[assignKey]metrics.WorkAssignment
	bookings    map[bookKey]metrics.Booking
	budgetItems map[string]metrics.BudgetItem
	estimates   map[string]metrics.ThirdPartyEstimate
	payables    map[string]metrics.Payable
	invoices    map[string]metrics.Invoice

	inv metrics.Invalidator
}

type assignKey struct {
	Project metrics.ProjectID
	Person  metrics.PersonID
}

type bookKey struct {
	Project metrics.ProjectID
	Person  metrics.PersonID
	Bucket  metrics.BucketRef
}

func NewMemory() *Memory {
	m := &Memory{
		persons:     make(map[metrics.PersonID]*metrics.Person),
		projects:    make(map[metrics.ProjectID]*metrics.Project),
		assignments: make(map[assignKey]metrics.WorkAssignment),
		bookings:    make(map[bookKey]metrics.Booking),
		budgetItems: make(map[string]metrics.BudgetItem),
		estimates:   make(map[string]metrics.ThirdPartyEstimate),
		payables:    make(map[string]metrics.Payable),
		invoices:    make(map[string]metrics.Invoice),
	}
	m.inv = metrics.Invalidator{Counters: m}
	return m
}

// =============================================================================
// BUCKET STORE
// =============================================================================

func (m *Memory) Bucket(_ context.Context, ref metrics.BucketRef) (*metrics.TimeBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i, ok := m.bucketIndex(ref); ok {
		b := m.buckets[i]
		return &b, nil
	}
	return nil, metrics.ErrBucketNotFound
}

func (m *Memory) BucketOnOrBefore(_ context.Context, day time.Time) (*metrics.TimeBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// First bucket strictly after the day, then step back one.
	i := sort.Search(len(m.buckets), func(i int) bool {
		return m.buckets[i].FirstDay.After(day)
	})
	if i == 0 {
		return nil, metrics.ErrBucketNotFound
	}
	b := m.buckets[i-1]
	return &b, nil
}

func (m *Memory) LastBucketOfYear(_ context.Context, year int) (*metrics.TimeBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := sort.Search(len(m.buckets), func(i int) bool {
		return m.buckets[i].Year > year
	})
	if i == 0 || m.buckets[i-1].Year != year {
		return nil, metrics.ErrBucketNotFound
	}
	b := m.buckets[i-1]
	return &b, nil
}

func (m *Memory) OffsetBucket(_ context.Context, ref metrics.BucketRef, n int) (*metrics.TimeBucket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, ok := m.bucketIndex(ref)
	if !ok {
		return nil, metrics.ErrBucketNotFound
	}
	j := i + n
	if j < 0 || j >= len(m.buckets) {
		return nil, metrics.ErrBucketNotFound
	}
	b := m.buckets[j]
	return &b, nil
}

func (m *Memory) SaveBuckets(_ context.Context, buckets []metrics.TimeBucket) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range buckets {
		if i, ok := m.bucketIndex(b.BucketRef); ok {
			m.buckets[i].DaysMissing = b.DaysMissing
			continue
		}
		m.buckets = append(m.buckets, b)
	}
	sort.Slice(m.buckets, func(i, j int) bool {
		return m.buckets[i].BucketRef.Before(m.buckets[j].BucketRef)
	})
	return nil
}

// bucketIndex requires m.mu held.
func (m *Memory) bucketIndex(ref metrics.BucketRef) (int, bool) {
	i := sort.Search(len(m.buckets), func(i int) bool {
		return !m.buckets[i].BucketRef.Before(ref)
	})
	if i < len(m.buckets) && m.buckets[i].BucketRef.Equal(ref) {
		return i, true
	}
	return 0, false
}

// =============================================================================
// ENTITY READS
// =============================================================================

func (m *Memory) Person(_ context.Context, id metrics.PersonID) (*metrics.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.persons[id]
	if !ok {
		return nil, metrics.ErrPersonNotFound
	}
	cp := *p
	cp.Rates = append([]metrics.RateEntry(nil), p.Rates...)
	return &cp, nil
}

func (m *Memory) Project(_ context.Context, id metrics.ProjectID) (*metrics.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, metrics.ErrProjectNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) AssignmentsByProject(_ context.Context, id metrics.ProjectID) ([]metrics.WorkAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []metrics.WorkAssignment
	for k, wa := range m.assignments {
		if k.Project == id {
			result = append(result, wa)
		}
	}
	sortAssignments(result)
	return result, nil
}

func (m *Memory) AssignmentsByPerson(_ context.Context, id metrics.PersonID) ([]metrics.WorkAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []metrics.WorkAssignment
	for k, wa := range m.assignments {
		if k.Person == id {
			result = append(result, wa)
		}
	}
	sortAssignments(result)
	return result, nil
}

func (m *Memory) BookingsByProject(_ context.Context, id metrics.ProjectID) ([]metrics.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []metrics.Booking
	for k, b := range m.bookings {
		if k.Project == id {
			result = append(result, b)
		}
	}
	return result, nil
}

func (m *Memory) BookingsByPerson(_ context.Context, id metrics.PersonID) ([]metrics.Booking, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []metrics.Booking
	for k, b := range m.bookings {
		if k.Person == id {
			result = append(result, b)
		}
	}
	return result, nil
}

func (m *Memory) BudgetItemsByProject(_ context.Context, id metrics.ProjectID) ([]metrics.BudgetItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []metrics.BudgetItem
	for _, item := range m.budgetItems {
		if item.Project == id {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *Memory) TransfersIntoProject(_ context.Context, id metrics.ProjectID) ([]metrics.BudgetItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []metrics.BudgetItem
	for _, item := range m.budgetItems {
		if item.TransferTarget == id {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *Memory) EstimatesByProject(_ context.Context, id metrics.ProjectID) ([]metrics.ThirdPartyEstimate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []metrics.ThirdPartyEstimate
	for _, e := range m.estimates {
		if e.Project == id {
			result = append(result, e)
		}
	}
	return result, nil
}

func (m *Memory) PayablesByProject(_ context.Context, id metrics.ProjectID) ([]metrics.Payable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []metrics.Payable
	for _, p := range m.payables {
		if p.Project == id {
			result = append(result, p)
		}
	}
	return result, nil
}

func (m *Memory) InvoicesByProject(_ context.Context, id metrics.ProjectID) ([]metrics.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []metrics.Invoice
	for _, inv := range m.invoices {
		if inv.Project == id {
			result = append(result, inv)
		}
	}
	return result, nil
}

func sortAssignments(was []metrics.WorkAssignment) {
	sort.Slice(was, func(i, j int) bool {
		if was[i].Project != was[j].Project {
			return was[i].Project < was[j].Project
		}
		return was[i].Person < was[j].Person
	})
}

// =============================================================================
// COUNTER BUMPS
// =============================================================================

func (m *Memory) BumpPerson(_ context.Context, id metrics.PersonID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.persons[id]
	if !ok {
		return metrics.ErrPersonNotFound
	}
	p.Counter++
	return nil
}

func (m *Memory) BumpPersonRates(_ context.Context, id metrics.PersonID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.persons[id]
	if !ok {
		return metrics.ErrPersonNotFound
	}
	p.RatesCounter++
	return nil
}

func (m *Memory) BumpProject(_ context.Context, id metrics.ProjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok {
		return metrics.ErrProjectNotFound
	}
	p.Counter++
	return nil
}

// =============================================================================
// SAVES - Each routes through the Invalidator
// =============================================================================

func (m *Memory) SavePerson(ctx context.Context, p *metrics.Person) error {
	m.mu.Lock()
	saved := *p
	if existing, ok := m.persons[p.ID]; ok {
		// Counters are store-owned; the incoming copy may be stale.
		saved.Counter = existing.Counter
		saved.RatesCounter = existing.RatesCounter
		saved.Rates = existing.Rates
	}
	m.persons[p.ID] = &saved
	m.mu.Unlock()

	if _, err := m.inv.OnPersonChanged(ctx, p.ID); err != nil {
		return err
	}
	return m.reloadPersonCounters(p)
}

func (m *Memory) SaveRates(ctx context.Context, id metrics.PersonID, rates []metrics.RateEntry) error {
	m.mu.Lock()
	p, ok := m.persons[id]
	if !ok {
		m.mu.Unlock()
		return metrics.ErrPersonNotFound
	}
	p.Rates = append([]metrics.RateEntry(nil), rates...)
	sort.Slice(p.Rates, func(i, j int) bool {
		return p.Rates[i].EffectiveFrom.Before(p.Rates[j].EffectiveFrom)
	})
	m.mu.Unlock()

	_, err := m.inv.OnRatesChanged(ctx, id)
	return err
}

func (m *Memory) SaveProject(ctx context.Context, p *metrics.Project) error {
	m.mu.Lock()
	saved := *p
	if existing, ok := m.projects[p.ID]; ok {
		saved.Counter = existing.Counter
	}
	m.projects[p.ID] = &saved

	existing, _ := m.assignmentsByProjectLocked(p.ID)
	created := metrics.ManagementAssignments(*p, existing)
	for _, wa := range created {
		m.assignments[assignKey{Project: wa.Project, Person: wa.Person}] = wa
	}
	m.mu.Unlock()

	if _, err := m.inv.OnProjectChanged(ctx, *p, append(existing, created...)); err != nil {
		return err
	}

	m.mu.RLock()
	p.Counter = m.projects[p.ID].Counter
	m.mu.RUnlock()
	return nil
}

func (m *Memory) SaveAssignment(ctx context.Context, a *metrics.WorkAssignment) error {
	m.mu.Lock()
	m.assignments[assignKey{Project: a.Project, Person: a.Person}] = *a
	m.mu.Unlock()

	_, err := m.inv.OnAssignmentChanged(ctx, *a)
	return err
}

func (m *Memory) SaveBooking(ctx context.Context, b *metrics.Booking) error {
	m.mu.Lock()
	// Both sides must exist before the booking lands.
	if _, ok := m.persons[b.Person]; !ok {
		m.mu.Unlock()
		return metrics.ErrPersonNotFound
	}
	if _, ok := m.projects[b.Project]; !ok {
		m.mu.Unlock()
		return metrics.ErrProjectNotFound
	}
	m.bookings[bookKey{Project: b.Project, Person: b.Person, Bucket: b.Bucket}] = *b
	m.mu.Unlock()

	_, err := m.inv.OnBookingChanged(ctx, *b)
	return err
}

func (m *Memory) SaveBudgetItem(ctx context.Context, item *metrics.BudgetItem) error {
	m.mu.Lock()
	m.budgetItems[item.ID] = *item
	m.mu.Unlock()

	_, err := m.inv.OnBudgetItemChanged(ctx, *item)
	return err
}

func (m *Memory) SaveEstimate(ctx context.Context, e *metrics.ThirdPartyEstimate) error {
	m.mu.Lock()
	m.estimates[e.ID] = *e
	m.mu.Unlock()

	_, err := m.inv.OnEstimateChanged(ctx, *e)
	return err
}

func (m *Memory) SavePayable(ctx context.Context, p *metrics.Payable) error {
	m.mu.Lock()
	m.payables[p.ID] = *p
	m.mu.Unlock()

	_, err := m.inv.OnPayableChanged(ctx, *p)
	return err
}

func (m *Memory) SaveInvoice(ctx context.Context, inv *metrics.Invoice) error {
	m.mu.Lock()
	m.invoices[inv.ID] = *inv
	m.mu.Unlock()

	_, err := m.inv.OnInvoiceChanged(ctx, *inv)
	return err
}

// assignmentsByProjectLocked requires m.mu held.
func (m *Memory) assignmentsByProjectLocked(id metrics.ProjectID) ([]metrics.WorkAssignment, error) {
	var result []metrics.WorkAssignment
	for k, wa := range m.assignments {
		if k.Project == id {
			result = append(result, wa)
		}
	}
	return result, nil
}

func (m *Memory) reloadPersonCounters(p *metrics.Person) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.persons[p.ID]
	if !ok {
		return metrics.ErrPersonNotFound
	}
	p.Counter = stored.Counter
	p.RatesCounter = stored.RatesCounter
	return nil
}
