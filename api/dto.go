/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Internally everything is decimal.Decimal; DTOs expose float64 for
  JSON friendliness. This is a display surface, the engine never reads
  these values back.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/warp/financials-engine/metrics"
)

// =============================================================================
// METRIC BUNDLES
// =============================================================================

// ProjectMetricsDTO is the flat work-calculation bundle for a project.
type ProjectMetricsDTO struct {
	ProjectID string `json:"project_id"`

	Budget      float64 `json:"budget"`
	TotalBooked float64 `json:"total_booked"`
	Overbooked  float64 `json:"overbooked"`
	WellBooked  float64 `json:"well_booked"`
	LeftToBook  float64 `json:"left_to_book"`

	Turnover       float64 `json:"turnover"`
	Loss           float64 `json:"loss"`
	LeftToTurnOver float64 `json:"left_to_turn_over"`

	PersonCosts           float64 `json:"person_costs"`
	WeightedAverageTariff float64 `json:"weighted_average_tariff"`
	RealizedAverageTariff float64 `json:"realized_average_tariff"`

	Costs      float64 `json:"costs"`
	Income     float64 `json:"income"`
	ThirdParty float64 `json:"third_party"`
	Invoiced   float64 `json:"invoiced"`
	Payables   float64 `json:"payables"`

	NetContractAmount float64 `json:"net_contract_amount"`
	TotalCosts        float64 `json:"total_costs"`
	TotalIncome       float64 `json:"total_income"`

	OverbookedPercentage int64   `json:"overbooked_percentage"`
	LeftToDishOut        float64 `json:"left_to_dish_out"`
}

func toProjectMetricsDTO(m metrics.ProjectMetrics) ProjectMetricsDTO {
	return ProjectMetricsDTO{
		ProjectID:             string(m.ProjectID),
		Budget:                m.Budget.InexactFloat64(),
		TotalBooked:           m.TotalBooked.InexactFloat64(),
		Overbooked:            m.Overbooked.InexactFloat64(),
		WellBooked:            m.WellBooked.InexactFloat64(),
		LeftToBook:            m.LeftToBook.InexactFloat64(),
		Turnover:              m.Turnover.InexactFloat64(),
		Loss:                  m.Loss.InexactFloat64(),
		LeftToTurnOver:        m.LeftToTurnOver.InexactFloat64(),
		PersonCosts:           m.PersonCosts.InexactFloat64(),
		WeightedAverageTariff: m.WeightedAverageTariff.InexactFloat64(),
		RealizedAverageTariff: m.RealizedAverageTariff.InexactFloat64(),
		Costs:                 m.Costs.InexactFloat64(),
		Income:                m.Income.InexactFloat64(),
		ThirdParty:            m.ThirdParty.InexactFloat64(),
		Invoiced:              m.Invoiced.InexactFloat64(),
		Payables:              m.Payables.InexactFloat64(),
		NetContractAmount:     m.NetContractAmount.InexactFloat64(),
		TotalCosts:            m.TotalCosts.InexactFloat64(),
		TotalIncome:           m.TotalIncome.InexactFloat64(),
		OverbookedPercentage:  m.OverbookedPercentage,
		LeftToDishOut:         m.LeftToDishOut.InexactFloat64(),
	}
}

// PersonYearMetricsDTO is the person-year combination bundle, including
// the lazily derived target fields.
type PersonYearMetricsDTO struct {
	PersonID string `json:"person_id"`
	Year     int    `json:"year"`

	TotalBooked    float64 `json:"total_booked"`
	Overbooked     float64 `json:"overbooked"`
	WellBooked     float64 `json:"well_booked"`
	LeftToBook     float64 `json:"left_to_book"`
	BookedInternal float64 `json:"booked_internal"`
	BookedExternal float64 `json:"booked_external"`

	Turnover float64 `json:"turnover"`
	Target   float64 `json:"target"`

	OverbookedPercentage  int64 `json:"overbooked_percentage"`
	WellBookedPercentage  int64 `json:"well_booked_percentage"`
	BillablePercentage    int64 `json:"billable_percentage"`
	NonBillablePercentage int64 `json:"non_billable_percentage"`

	TargetPercentage int64   `json:"target_percentage"`
	LeftToTurnOver   float64 `json:"left_to_turn_over"`
}

func toPersonYearMetricsDTO(m metrics.PersonYearMetrics) PersonYearMetricsDTO {
	return PersonYearMetricsDTO{
		PersonID:              string(m.PersonID),
		Year:                  m.Year,
		TotalBooked:           m.TotalBooked.InexactFloat64(),
		Overbooked:            m.Overbooked.InexactFloat64(),
		WellBooked:            m.WellBooked.InexactFloat64(),
		LeftToBook:            m.LeftToBook.InexactFloat64(),
		BookedInternal:        m.BookedInternal.InexactFloat64(),
		BookedExternal:        m.BookedExternal.InexactFloat64(),
		Turnover:              m.Turnover.InexactFloat64(),
		Target:                m.Target.InexactFloat64(),
		OverbookedPercentage:  m.OverbookedPercentage,
		WellBookedPercentage:  m.WellBookedPercentage,
		BillablePercentage:    m.BillablePercentage,
		NonBillablePercentage: m.NonBillablePercentage,
		TargetPercentage:      m.TargetPercentage(),
		LeftToTurnOver:        m.LeftToTurnOver().InexactFloat64(),
	}
}

// =============================================================================
// ENTITY REQUESTS
// =============================================================================

type SavePersonRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Archived   bool   `json:"archived"`
	Management bool   `json:"management"`
}

type RateEntryDTO struct {
	EffectiveFrom string  `json:"effective_from"` // YYYY-MM-DD
	WeeklyHours   float64 `json:"weekly_hours"`
	Target        float64 `json:"target"`
	Tariff        float64 `json:"tariff"`
}

type SaveRatesRequest struct {
	Rates []RateEntryDTO `json:"rates"`
}

type BucketRefDTO struct {
	Year int `json:"year"`
	Week int `json:"week"`
}

type SaveProjectRequest struct {
	ID                  string        `json:"id"`
	Code                string        `json:"code"`
	Archived            bool          `json:"archived"`
	Internal            bool          `json:"internal"`
	Hidden              bool          `json:"hidden"`
	Hourless            bool          `json:"hourless"`
	Start               *BucketRefDTO `json:"start,omitempty"`
	End                 *BucketRefDTO `json:"end,omitempty"`
	ContractAmount      float64       `json:"contract_amount"`
	Reservation         float64       `json:"reservation"`
	Profit              float64       `json:"profit"`
	SoftwareDevelopment float64       `json:"software_development"`
	Leader              string        `json:"leader,omitempty"`
	Manager             string        `json:"manager,omitempty"`
}

type SaveAssignmentRequest struct {
	Project string  `json:"project"`
	Person  string  `json:"person"`
	Hours   float64 `json:"hours"`
	Tariff  float64 `json:"tariff"`
}

type SaveBookingRequest struct {
	Project string  `json:"project"`
	Person  string  `json:"person"`
	Year    int     `json:"year"`
	Week    int     `json:"week"`
	Hours   float64 `json:"hours"`
}

type SaveBudgetItemRequest struct {
	ID             string  `json:"id,omitempty"` // server-generated when empty
	Project        string  `json:"project"`
	Description    string  `json:"description"`
	Amount         float64 `json:"amount"`
	TransferTarget string  `json:"transfer_target,omitempty"`
}

type SaveMoneyRecordRequest struct {
	ID          string  `json:"id,omitempty"` // server-generated when empty
	Project     string  `json:"project"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

type GenerateBucketsRequest struct {
	From string `json:"from"` // YYYY-MM-DD
	To   string `json:"to"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type BucketDTO struct {
	ID          string `json:"id"`
	Year        int    `json:"year"`
	Week        int    `json:"week"`
	FirstDay    string `json:"first_day"`
	DaysMissing int    `json:"days_missing"`
}

func toBucketDTO(b metrics.TimeBucket) BucketDTO {
	return BucketDTO{
		ID:          string(b.ID()),
		Year:        b.Year,
		Week:        b.Week,
		FirstDay:    b.FirstDay.Format("2006-01-02"),
		DaysMissing: b.DaysMissing,
	}
}

type SavedResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
