package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/financials-engine/metrics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// BUCKETS
// =============================================================================

func TestSQLite_BucketRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	buckets := metrics.GenerateBuckets(date(2025, time.January, 1), date(2025, time.March, 31))
	if err := s.SaveBuckets(ctx, buckets); err != nil {
		t.Fatalf("SaveBuckets: %v", err)
	}

	got, err := s.Bucket(ctx, metrics.BucketRef{Year: 2025, Week: 1})
	if err != nil {
		t.Fatalf("Bucket: %v", err)
	}
	if !got.FirstDay.Equal(date(2025, time.January, 1)) {
		t.Errorf("firstDay = %v, want 2025-01-01", got.FirstDay)
	}
	if got.DaysMissing != 2 {
		t.Errorf("daysMissing = %d, want 2", got.DaysMissing)
	}

	onOrBefore, err := s.BucketOnOrBefore(ctx, date(2025, time.February, 12))
	if err != nil {
		t.Fatalf("BucketOnOrBefore: %v", err)
	}
	if !onOrBefore.FirstDay.Equal(date(2025, time.February, 10)) {
		t.Errorf("firstDay = %v, want 2025-02-10", onOrBefore.FirstDay)
	}

	last, err := s.LastBucketOfYear(ctx, 2024)
	if err != nil {
		t.Fatalf("LastBucketOfYear: %v", err)
	}
	if last.Week != 53 {
		t.Errorf("week = %d, want 53", last.Week)
	}

	offset, err := s.OffsetBucket(ctx, metrics.BucketRef{Year: 2025, Week: 1}, -1)
	if err != nil {
		t.Fatalf("OffsetBucket: %v", err)
	}
	if offset.Year != 2024 || offset.Week != 53 {
		t.Errorf("offset = %s, want 2024-W53", offset.BucketRef)
	}
}

func TestSQLite_SaveBucketsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	buckets := metrics.GenerateBuckets(date(2025, time.June, 2), date(2025, time.June, 29))
	if err := s.SaveBuckets(ctx, buckets); err != nil {
		t.Fatalf("SaveBuckets: %v", err)
	}
	if err := s.SaveBuckets(ctx, buckets); err != nil {
		t.Fatalf("second SaveBuckets: %v", err)
	}

	if _, err := s.Bucket(ctx, metrics.BucketRef{Year: 2025, Week: 23}); err != nil {
		t.Fatalf("Bucket after resave: %v", err)
	}
}

// =============================================================================
// ENTITIES AND COUNTERS
// =============================================================================

func TestSQLite_PersonRoundTripWithRates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := &metrics.Person{ID: "p", Name: "Pat", Management: true}
	if err := s.SavePerson(ctx, p); err != nil {
		t.Fatalf("SavePerson: %v", err)
	}

	rates := []metrics.RateEntry{
		{EffectiveFrom: date(2024, time.January, 1), WeeklyHours: decimal.NewFromInt(40), Target: decimal.NewFromInt(100000), Tariff: decimal.NewFromInt(90)},
		{EffectiveFrom: date(2025, time.July, 1), WeeklyHours: decimal.NewFromInt(32), Target: decimal.NewFromInt(80000), Tariff: decimal.NewFromInt(95)},
	}
	if err := s.SaveRates(ctx, "p", rates); err != nil {
		t.Fatalf("SaveRates: %v", err)
	}

	got, err := s.Person(ctx, "p")
	if err != nil {
		t.Fatalf("Person: %v", err)
	}
	if got.Name != "Pat" || !got.Management {
		t.Errorf("person fields lost: %+v", got)
	}
	if len(got.Rates) != 2 {
		t.Fatalf("rates = %d, want 2", len(got.Rates))
	}
	if !got.Rates[0].EffectiveFrom.Before(got.Rates[1].EffectiveFrom) {
		t.Error("rates should come back ordered by effective date")
	}
	if !got.Rates[1].Tariff.Equal(decimal.NewFromInt(95)) {
		t.Errorf("tariff = %s, want 95", got.Rates[1].Tariff)
	}
	if got.RatesCounter == 0 {
		t.Error("SaveRates should move the rates counter")
	}
}

func TestSQLite_CountersMoveOnSaves(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SavePerson(ctx, &metrics.Person{ID: "p", Name: "Pat"}); err != nil {
		t.Fatalf("SavePerson: %v", err)
	}
	proj := &metrics.Project{ID: "x", Code: "X-001", ContractAmount: decimal.NewFromInt(50000)}
	if err := s.SaveProject(ctx, proj); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	personBefore, _ := s.Person(ctx, "p")
	projectBefore, _ := s.Project(ctx, "x")

	b := &metrics.Booking{Project: "x", Person: "p", Bucket: metrics.BucketRef{Year: 2025, Week: 10}, Hours: decimal.NewFromInt(8)}
	if err := s.SaveBooking(ctx, b); err != nil {
		t.Fatalf("SaveBooking: %v", err)
	}

	personAfter, _ := s.Person(ctx, "p")
	projectAfter, _ := s.Project(ctx, "x")
	if personAfter.Counter <= personBefore.Counter {
		t.Error("booking should bump the person")
	}
	if projectAfter.Counter <= projectBefore.Counter {
		t.Error("booking should bump the project")
	}
	if personAfter.RatesCounter != personBefore.RatesCounter {
		t.Error("booking must not move the rates counter")
	}
}

func TestSQLite_BumpUnknownEntity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.BumpPerson(ctx, "nobody"); err != metrics.ErrPersonNotFound {
		t.Errorf("BumpPerson: %v, want ErrPersonNotFound", err)
	}
	if err := s.BumpProject(ctx, "nothing"); err != metrics.ErrProjectNotFound {
		t.Errorf("BumpProject: %v, want ErrProjectNotFound", err)
	}
}

// =============================================================================
// PROJECT SIDE EFFECTS AND MONEY
// =============================================================================

func TestSQLite_SaveProjectCreatesManagementAssignments(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.SavePerson(ctx, &metrics.Person{ID: "lead", Name: "Lee"}); err != nil {
		t.Fatalf("SavePerson: %v", err)
	}

	p := &metrics.Project{ID: "x", Code: "X-001", Leader: "lead"}
	if err := s.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	assignments, err := s.AssignmentsByProject(ctx, "x")
	if err != nil {
		t.Fatalf("AssignmentsByProject: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("assignments = %d, want 1", len(assignments))
	}
	if assignments[0].Person != "lead" || !assignments[0].Hours.IsZero() {
		t.Errorf("unexpected implicit assignment: %+v", assignments[0])
	}

	// Resave must not duplicate.
	if err := s.SaveProject(ctx, p); err != nil {
		t.Fatalf("second SaveProject: %v", err)
	}
	assignments, _ = s.AssignmentsByProject(ctx, "x")
	if len(assignments) != 1 {
		t.Errorf("assignments after resave = %d, want 1", len(assignments))
	}
}

func TestSQLite_ProjectBucketRangeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := &metrics.Project{
		ID:    "x",
		Code:  "X-001",
		Start: &metrics.BucketRef{Year: 2025, Week: 3},
		End:   &metrics.BucketRef{Year: 2026, Week: 20},
	}
	if err := s.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}

	got, err := s.Project(ctx, "x")
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if got.Start == nil || !got.Start.Equal(metrics.BucketRef{Year: 2025, Week: 3}) {
		t.Errorf("start = %v", got.Start)
	}
	if got.End == nil || !got.End.Equal(metrics.BucketRef{Year: 2026, Week: 20}) {
		t.Errorf("end = %v", got.End)
	}

	// A project without a range comes back with nil boundaries.
	if err := s.SaveProject(ctx, &metrics.Project{ID: "open", Code: "O-001"}); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}
	open, _ := s.Project(ctx, "open")
	if open.Start != nil || open.End != nil {
		t.Errorf("open-ended project should have nil range, got %v..%v", open.Start, open.End)
	}
}

func TestSQLite_TransfersAndMoneyRecords(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []metrics.ProjectID{"a", "b"} {
		if err := s.SaveProject(ctx, &metrics.Project{ID: id, Code: string(id)}); err != nil {
			t.Fatalf("SaveProject %s: %v", id, err)
		}
	}

	if err := s.SaveBudgetItem(ctx, &metrics.BudgetItem{
		ID: "t1", Project: "a", Description: "setup", Amount: decimal.NewFromInt(500), TransferTarget: "b",
	}); err != nil {
		t.Fatalf("SaveBudgetItem: %v", err)
	}
	if err := s.SaveEstimate(ctx, &metrics.ThirdPartyEstimate{
		ID: "e1", Project: "a", Description: "hosting", Amount: decimal.NewFromFloat(1234.56),
	}); err != nil {
		t.Fatalf("SaveEstimate: %v", err)
	}

	incoming, err := s.TransfersIntoProject(ctx, "b")
	if err != nil {
		t.Fatalf("TransfersIntoProject: %v", err)
	}
	if len(incoming) != 1 || incoming[0].ID != "t1" {
		t.Fatalf("incoming = %+v, want t1", incoming)
	}

	estimates, err := s.EstimatesByProject(ctx, "a")
	if err != nil {
		t.Fatalf("EstimatesByProject: %v", err)
	}
	if len(estimates) != 1 || !estimates[0].Amount.Equal(decimal.NewFromFloat(1234.56)) {
		t.Fatalf("estimates = %+v", estimates)
	}
}
