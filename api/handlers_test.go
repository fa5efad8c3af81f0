/*
handlers_test.go - HTTP-level tests for the API surface

Tests drive the real router with httptest, backed by the in-memory
store, so the full save -> counter bump -> recompute path is exercised
the way an external caller sees it.
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/financials-engine/cache"
	"github.com/warp/financials-engine/metrics"
	"github.com/warp/financials-engine/metrics/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mem := store.NewMemory()
	registry := &metrics.Registry{
		Store: mem,
		Now:   func() time.Time { return time.Date(2025, time.June, 11, 12, 0, 0, 0, time.UTC) },
	}
	engine := &metrics.Engine{
		Store:       mem,
		Registry:    registry,
		Projects:    cache.NewMemory[metrics.ProjectMetrics](),
		PersonYears: cache.NewMemory[metrics.PersonYearMetrics](),
		Targets:     cache.NewMemory[decimal.Decimal](),
	}

	srv := httptest.NewServer(NewRouter(NewHandler(mem, engine, registry)))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, srv *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func mustOK(t *testing.T, resp *http.Response, path string) {
	t.Helper()
	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		json.NewDecoder(resp.Body).Decode(&e)
		resp.Body.Close()
		t.Fatalf("%s: status %d (%s: %s)", path, resp.StatusCode, e.Error, e.Details)
	}
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

// seedWorld POSTs buckets for 2025, one person with rates, one project
// and an assignment.
func seedWorld(t *testing.T, srv *httptest.Server) {
	t.Helper()

	resp := postJSON(t, srv, "/api/admin/buckets", GenerateBucketsRequest{From: "2025-01-01", To: "2025-12-31"})
	mustOK(t, resp, "/api/admin/buckets")
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/persons", SavePersonRequest{ID: "p", Name: "Pat"})
	mustOK(t, resp, "/api/persons")
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/persons/p/rates", SaveRatesRequest{Rates: []RateEntryDTO{
		{EffectiveFrom: "2024-01-01", WeeklyHours: 40, Target: 120000, Tariff: 95},
	}})
	mustOK(t, resp, "/api/persons/p/rates")
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/projects", SaveProjectRequest{ID: "x", Code: "X-001", ContractAmount: 50000})
	mustOK(t, resp, "/api/projects")
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/assignments", SaveAssignmentRequest{Project: "x", Person: "p", Hours: 100, Tariff: 95})
	mustOK(t, resp, "/api/assignments")
	resp.Body.Close()
}

// =============================================================================
// METRICS READS
// =============================================================================

func TestAPI_ProjectMetricsReflectBookings(t *testing.T) {
	srv := newTestServer(t)
	seedWorld(t, srv)

	resp := postJSON(t, srv, "/api/bookings", SaveBookingRequest{Project: "x", Person: "p", Year: 2025, Week: 10, Hours: 12})
	mustOK(t, resp, "/api/bookings")
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/projects/x/metrics")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	mustOK(t, resp, "/api/projects/x/metrics")
	m := decode[ProjectMetricsDTO](t, resp)

	if m.TotalBooked != 12 {
		t.Errorf("totalBooked = %v, want 12", m.TotalBooked)
	}
	if m.Turnover != 12*95 {
		t.Errorf("turnover = %v, want %v", m.Turnover, 12*95)
	}
	if m.LeftToBook != 88 {
		t.Errorf("leftToBook = %v, want 88", m.LeftToBook)
	}
}

func TestAPI_MetricsRefreshAfterNewBooking(t *testing.T) {
	// The cached bundle must become unreachable as soon as a new
	// booking lands; the very next GET sees the update.

	srv := newTestServer(t)
	seedWorld(t, srv)

	resp := postJSON(t, srv, "/api/bookings", SaveBookingRequest{Project: "x", Person: "p", Year: 2025, Week: 10, Hours: 8})
	mustOK(t, resp, "/api/bookings")
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/api/projects/x/metrics")
	mustOK(t, resp, "metrics #1")
	first := decode[ProjectMetricsDTO](t, resp)
	if first.TotalBooked != 8 {
		t.Fatalf("totalBooked = %v, want 8", first.TotalBooked)
	}

	resp = postJSON(t, srv, "/api/bookings", SaveBookingRequest{Project: "x", Person: "p", Year: 2025, Week: 11, Hours: 4})
	mustOK(t, resp, "/api/bookings")
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/api/projects/x/metrics")
	mustOK(t, resp, "metrics #2")
	second := decode[ProjectMetricsDTO](t, resp)
	if second.TotalBooked != 12 {
		t.Errorf("totalBooked = %v, want 12 after new booking", second.TotalBooked)
	}
}

func TestAPI_PersonYearMetricsIncludeLazyTargetFields(t *testing.T) {
	srv := newTestServer(t)
	seedWorld(t, srv)

	resp := postJSON(t, srv, "/api/bookings", SaveBookingRequest{Project: "x", Person: "p", Year: 2025, Week: 10, Hours: 40})
	mustOK(t, resp, "/api/bookings")
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/api/persons/p/years/2025/metrics")
	mustOK(t, resp, "person-year metrics")
	m := decode[PersonYearMetricsDTO](t, resp)

	if m.Target != 120000 {
		t.Errorf("target = %v, want 120000", m.Target)
	}
	if m.Turnover != 40*95 {
		t.Errorf("turnover = %v, want %v", m.Turnover, 40*95)
	}
	if m.TargetPercentage != 3 { // round(3800/120000*100)
		t.Errorf("targetPercentage = %v, want 3", m.TargetPercentage)
	}
	if m.LeftToTurnOver != 120000-3800 {
		t.Errorf("leftToTurnOver = %v, want %v", m.LeftToTurnOver, 120000-3800)
	}
	if m.BillablePercentage != 100 {
		t.Errorf("billablePercentage = %v, want 100", m.BillablePercentage)
	}
}

func TestAPI_YearTarget(t *testing.T) {
	srv := newTestServer(t)
	seedWorld(t, srv)

	resp, _ := http.Get(srv.URL + "/api/persons/p/years/2025/target")
	mustOK(t, resp, "year target")
	out := decode[map[string]any](t, resp)

	if out["target"].(float64) != 120000 {
		t.Errorf("target = %v, want 120000", out["target"])
	}
}

// =============================================================================
// VALIDATION AND ERRORS
// =============================================================================

func TestAPI_UnknownProjectIs404(t *testing.T) {
	srv := newTestServer(t)
	seedWorld(t, srv)

	resp, err := http.Get(srv.URL + "/api/projects/nope/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAPI_BookingIntoUnknownBucketIs400(t *testing.T) {
	srv := newTestServer(t)
	seedWorld(t, srv)

	resp := postJSON(t, srv, "/api/bookings", SaveBookingRequest{Project: "x", Person: "p", Year: 1999, Week: 7, Hours: 8})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAPI_PersonWithoutNameIs400(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv, "/api/persons", SavePersonRequest{ID: "p"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestAPI_ServerGeneratesIDs(t *testing.T) {
	srv := newTestServer(t)
	seedWorld(t, srv)

	resp := postJSON(t, srv, "/api/budget-items", SaveBudgetItemRequest{Project: "x", Description: "hardware", Amount: 250})
	mustOK(t, resp, "/api/budget-items")
	out := decode[SavedResponse](t, resp)

	if out.ID == "" {
		t.Error("expected a generated id")
	}
}

func TestAPI_CurrentBucket(t *testing.T) {
	srv := newTestServer(t)
	seedWorld(t, srv)

	resp, _ := http.Get(srv.URL + "/api/buckets/current")
	mustOK(t, resp, "/api/buckets/current")
	b := decode[BucketDTO](t, resp)

	// June 11 2025 is a Wednesday; that week's Monday is June 9.
	if b.FirstDay != "2025-06-09" {
		t.Errorf("firstDay = %s, want 2025-06-09", b.FirstDay)
	}
	if b.Year != 2025 {
		t.Errorf("year = %d, want 2025", b.Year)
	}
}

func TestAPI_TransferShowsOnBothProjects(t *testing.T) {
	srv := newTestServer(t)
	seedWorld(t, srv)

	resp := postJSON(t, srv, "/api/projects", SaveProjectRequest{ID: "y", Code: "Y-001"})
	mustOK(t, resp, "/api/projects")
	resp.Body.Close()

	resp = postJSON(t, srv, "/api/budget-items", SaveBudgetItemRequest{
		ID: "t1", Project: "x", Description: "shared setup", Amount: 500, TransferTarget: "y",
	})
	mustOK(t, resp, "/api/budget-items")
	resp.Body.Close()

	resp, _ = http.Get(srv.URL + "/api/projects/x/metrics")
	mustOK(t, resp, "x metrics")
	x := decode[ProjectMetricsDTO](t, resp)
	if x.Costs != 500 {
		t.Errorf("x costs = %v, want 500", x.Costs)
	}

	resp, _ = http.Get(srv.URL + "/api/projects/y/metrics")
	mustOK(t, resp, "y metrics")
	y := decode[ProjectMetricsDTO](t, resp)
	if y.Income != 500 {
		t.Errorf("y income = %v, want 500", y.Income)
	}
}
