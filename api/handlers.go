/*
handlers.go - HTTP API handlers for the financials engine

PURPOSE:
  Exposes the derived-metrics engine and the entity write paths via
  REST. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Metrics:
    GET    /api/projects/{id}/metrics          Project work calculation
    GET    /api/persons/{id}/years/{year}/metrics  Person-year bundle
    GET    /api/persons/{id}/years/{year}/target   Year turnover target

  Entities:
    POST   /api/persons                Create or update person
    POST   /api/persons/{id}/rates     Replace rate history
    POST   /api/projects               Create or update project
    POST   /api/assignments            Upsert work assignment
    POST   /api/bookings               Upsert booking
    POST   /api/budget-items           Create or update budget item
    POST   /api/estimates              Create or update third-party estimate
    POST   /api/payables               Create or update payable
    POST   /api/invoices               Create or update invoice

  Buckets:
    GET    /api/buckets/current        The bucket containing "now"
    POST   /api/admin/buckets          Generate buckets for a date range

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (store save, engine read)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Entity not found
  - 500: Internal errors

CACHE INVALIDATION:
  Handlers never touch counters. Every Save on the store routes through
  the Invalidator, so a metrics GET issued right after a POST already
  sees the new state.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/financials-engine/metrics"
)

const dateLayout = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for the API handlers.
type Handler struct {
	Store    metrics.MutableStore
	Engine   *metrics.Engine
	Registry *metrics.Registry
}

// NewHandler creates a handler with all dependencies wired.
func NewHandler(store metrics.MutableStore, engine *metrics.Engine, registry *metrics.Registry) *Handler {
	return &Handler{Store: store, Engine: engine, Registry: registry}
}

// =============================================================================
// METRICS ENDPOINTS
// =============================================================================

// GetProjectMetrics returns the full work calculation for a project.
func (h *Handler) GetProjectMetrics(w http.ResponseWriter, r *http.Request) {
	id := metrics.ProjectID(chi.URLParam(r, "id"))

	m, err := h.Engine.ProjectMetrics(r.Context(), id)
	if err != nil {
		if metrics.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "project not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to calculate project metrics", err)
		return
	}

	writeJSON(w, http.StatusOK, toProjectMetricsDTO(m))
}

// GetPersonYearMetrics returns the person-year bundle for one person
// and one calendar year, including the lazily derived target fields.
func (h *Handler) GetPersonYearMetrics(w http.ResponseWriter, r *http.Request) {
	id := metrics.PersonID(chi.URLParam(r, "id"))
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year", err)
		return
	}

	m, err := h.Engine.PersonYearMetrics(r.Context(), id, year)
	if err != nil {
		if metrics.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "person not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to calculate person-year metrics", err)
		return
	}

	writeJSON(w, http.StatusOK, toPersonYearMetricsDTO(m))
}

// GetYearTarget returns just the turnover target for a person-year.
// Cheaper than the full bundle when only the target is needed.
func (h *Handler) GetYearTarget(w http.ResponseWriter, r *http.Request) {
	id := metrics.PersonID(chi.URLParam(r, "id"))
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year", err)
		return
	}

	target, err := h.Engine.YearTarget(r.Context(), id, year)
	if err != nil {
		if metrics.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "person not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to calculate target", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"person_id": string(id),
		"year":      year,
		"target":    target.InexactFloat64(),
	})
}

// =============================================================================
// PERSON ENDPOINTS
// =============================================================================

// SavePerson creates or updates a person. Rate history is managed
// separately via SaveRates.
func (h *Handler) SavePerson(w http.ResponseWriter, r *http.Request) {
	var req SavePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	p := &metrics.Person{
		ID:         metrics.PersonID(req.ID),
		Name:       req.Name,
		Archived:   req.Archived,
		Management: req.Management,
	}
	if err := h.Store.SavePerson(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save person", err)
		return
	}

	writeJSON(w, http.StatusOK, SavedResponse{ID: req.ID, Status: "saved"})
}

// SaveRates replaces a person's full rate history.
func (h *Handler) SaveRates(w http.ResponseWriter, r *http.Request) {
	id := metrics.PersonID(chi.URLParam(r, "id"))

	var req SaveRatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rates := make([]metrics.RateEntry, 0, len(req.Rates))
	for _, e := range req.Rates {
		from, err := time.Parse(dateLayout, e.EffectiveFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid effective_from date", err)
			return
		}
		rates = append(rates, metrics.RateEntry{
			EffectiveFrom: from,
			WeeklyHours:   decimal.NewFromFloat(e.WeeklyHours),
			Target:        decimal.NewFromFloat(e.Target),
			Tariff:        decimal.NewFromFloat(e.Tariff),
		})
	}

	if err := h.Store.SaveRates(r.Context(), id, rates); err != nil {
		if metrics.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "person not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save rates", err)
		return
	}

	writeJSON(w, http.StatusOK, SavedResponse{ID: string(id), Status: "saved"})
}

// =============================================================================
// PROJECT ENDPOINTS
// =============================================================================

// SaveProject creates or updates a project. Leader and manager get an
// implicit zero-hours assignment if they have none yet.
func (h *Handler) SaveProject(w http.ResponseWriter, r *http.Request) {
	var req SaveProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required", nil)
		return
	}

	p := &metrics.Project{
		ID:                  metrics.ProjectID(req.ID),
		Code:                req.Code,
		Archived:            req.Archived,
		Internal:            req.Internal,
		Hidden:              req.Hidden,
		Hourless:            req.Hourless,
		Start:               toBucketRef(req.Start),
		End:                 toBucketRef(req.End),
		ContractAmount:      decimal.NewFromFloat(req.ContractAmount),
		Reservation:         decimal.NewFromFloat(req.Reservation),
		Profit:              decimal.NewFromFloat(req.Profit),
		SoftwareDevelopment: decimal.NewFromFloat(req.SoftwareDevelopment),
		Leader:              metrics.PersonID(req.Leader),
		Manager:             metrics.PersonID(req.Manager),
	}
	if err := h.Store.SaveProject(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save project", err)
		return
	}

	writeJSON(w, http.StatusOK, SavedResponse{ID: req.ID, Status: "saved"})
}

func toBucketRef(d *BucketRefDTO) *metrics.BucketRef {
	if d == nil {
		return nil
	}
	return &metrics.BucketRef{Year: d.Year, Week: d.Week}
}

// =============================================================================
// ASSIGNMENT AND BOOKING ENDPOINTS
// =============================================================================

// SaveAssignment upserts a work assignment by (project, person).
func (h *Handler) SaveAssignment(w http.ResponseWriter, r *http.Request) {
	var req SaveAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Project == "" || req.Person == "" {
		writeError(w, http.StatusBadRequest, "project and person are required", nil)
		return
	}

	a := &metrics.WorkAssignment{
		Project: metrics.ProjectID(req.Project),
		Person:  metrics.PersonID(req.Person),
		Hours:   decimal.NewFromFloat(req.Hours),
		Tariff:  decimal.NewFromFloat(req.Tariff),
	}
	if err := h.Store.SaveAssignment(r.Context(), a); err != nil {
		if metrics.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "project or person not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save assignment", err)
		return
	}

	writeJSON(w, http.StatusOK, SavedResponse{ID: req.Project + "/" + req.Person, Status: "saved"})
}

// SaveBooking upserts booked hours by (project, person, bucket).
func (h *Handler) SaveBooking(w http.ResponseWriter, r *http.Request) {
	var req SaveBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Project == "" || req.Person == "" {
		writeError(w, http.StatusBadRequest, "project and person are required", nil)
		return
	}

	ref := metrics.BucketRef{Year: req.Year, Week: req.Week}
	if _, err := h.Store.Bucket(r.Context(), ref); err != nil {
		writeError(w, http.StatusBadRequest, "unknown time bucket", err)
		return
	}

	b := &metrics.Booking{
		Project: metrics.ProjectID(req.Project),
		Person:  metrics.PersonID(req.Person),
		Bucket:  ref,
		Hours:   decimal.NewFromFloat(req.Hours),
	}
	if err := h.Store.SaveBooking(r.Context(), b); err != nil {
		if metrics.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "project or person not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save booking", err)
		return
	}

	writeJSON(w, http.StatusOK, SavedResponse{ID: req.Project + "/" + req.Person + "/" + ref.String(), Status: "saved"})
}

// =============================================================================
// MONEY ENDPOINTS
// =============================================================================

// SaveBudgetItem creates or updates a budget item. When transfer_target
// is set the amount is mirrored onto the target project.
func (h *Handler) SaveBudgetItem(w http.ResponseWriter, r *http.Request) {
	var req SaveBudgetItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Project == "" {
		writeError(w, http.StatusBadRequest, "project is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	item := &metrics.BudgetItem{
		ID:             req.ID,
		Project:        metrics.ProjectID(req.Project),
		Description:    req.Description,
		Amount:         decimal.NewFromFloat(req.Amount),
		TransferTarget: metrics.ProjectID(req.TransferTarget),
	}
	if err := h.Store.SaveBudgetItem(r.Context(), item); err != nil {
		if metrics.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "project not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save budget item", err)
		return
	}

	writeJSON(w, http.StatusOK, SavedResponse{ID: req.ID, Status: "saved"})
}

// SaveEstimate creates or updates a third-party cost estimate.
func (h *Handler) SaveEstimate(w http.ResponseWriter, r *http.Request) {
	h.saveMoneyRecord(w, r, func(r *http.Request, id string, req SaveMoneyRecordRequest) error {
		return h.Store.SaveEstimate(r.Context(), &metrics.ThirdPartyEstimate{
			ID:          id,
			Project:     metrics.ProjectID(req.Project),
			Description: req.Description,
			Amount:      decimal.NewFromFloat(req.Amount),
		})
	})
}

// SavePayable creates or updates a payable.
func (h *Handler) SavePayable(w http.ResponseWriter, r *http.Request) {
	h.saveMoneyRecord(w, r, func(r *http.Request, id string, req SaveMoneyRecordRequest) error {
		return h.Store.SavePayable(r.Context(), &metrics.Payable{
			ID:          id,
			Project:     metrics.ProjectID(req.Project),
			Description: req.Description,
			Amount:      decimal.NewFromFloat(req.Amount),
		})
	})
}

// SaveInvoice creates or updates an invoice.
func (h *Handler) SaveInvoice(w http.ResponseWriter, r *http.Request) {
	h.saveMoneyRecord(w, r, func(r *http.Request, id string, req SaveMoneyRecordRequest) error {
		return h.Store.SaveInvoice(r.Context(), &metrics.Invoice{
			ID:          id,
			Project:     metrics.ProjectID(req.Project),
			Description: req.Description,
			Amount:      decimal.NewFromFloat(req.Amount),
		})
	})
}

// saveMoneyRecord is the shared parse/validate/respond shell for the
// three money-record kinds.
func (h *Handler) saveMoneyRecord(w http.ResponseWriter, r *http.Request, save func(r *http.Request, id string, req SaveMoneyRecordRequest) error) {
	var req SaveMoneyRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Project == "" {
		writeError(w, http.StatusBadRequest, "project is required", nil)
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	if err := save(r, req.ID, req); err != nil {
		if metrics.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "project not found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to save record", err)
		return
	}

	writeJSON(w, http.StatusOK, SavedResponse{ID: req.ID, Status: "saved"})
}

// =============================================================================
// BUCKET ENDPOINTS
// =============================================================================

// GetCurrentBucket returns the bucket containing "now".
func (h *Handler) GetCurrentBucket(w http.ResponseWriter, r *http.Request) {
	b, err := h.Registry.Current(r.Context())
	if err != nil {
		if metrics.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "no bucket covers the current date", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to resolve current bucket", err)
		return
	}
	writeJSON(w, http.StatusOK, toBucketDTO(*b))
}

// GenerateBuckets creates the buckets covering a date range. Existing
// buckets are left in place; this is an idempotent maintenance call.
func (h *Handler) GenerateBuckets(w http.ResponseWriter, r *http.Request) {
	var req GenerateBucketsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	from, err := time.Parse(dateLayout, req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date", err)
		return
	}
	to, err := time.Parse(dateLayout, req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date", err)
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from", nil)
		return
	}

	buckets := metrics.GenerateBuckets(from, to)
	if err := h.Store.SaveBuckets(r.Context(), buckets); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save buckets", err)
		return
	}

	out := make([]BucketDTO, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, toBucketDTO(b))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
