/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DISPLAY FIELDS:
  Every quantity of a beneficiary is sent twice: the raw number and its
  display text in the "<field>_dispUnit" sibling, e.g.
    "available_quantity": 2.5,
    "available_quantity_dispUnit": "2.5 days"

DATES:
  All dates are YYYY-MM-DD strings.

SEE ALSO:
  - handlers.go: Uses these types
  - beneficiary/snapshot.go: Source of BeneficiaryDTO
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/renewal-engine/beneficiary"
	"github.com/warp/renewal-engine/generic"
)

// =============================================================================
// CATALOG TYPES
// =============================================================================

type UserDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type CreateUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type RightDTO struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

type CreateRightRequest struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

type RenewalDTO struct {
	ID      string `json:"id"`
	RightID string `json:"right_id"`
	Start   string `json:"start"`
	Finish  string `json:"finish"`
}

type CreateRenewalRequest struct {
	ID     string `json:"id,omitempty"` // generated when empty
	Start  string `json:"start"`
	Finish string `json:"finish"`
}

type AccountDTO struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	RightID string `json:"right_id"`
	Arrival string `json:"arrival,omitempty"`
}

type CreateAccountRequest struct {
	ID      string `json:"id,omitempty"` // generated when empty
	UserID  string `json:"user_id"`
	RightID string `json:"right_id"`
	Arrival string `json:"arrival,omitempty"` // empty = unknown
}

type EntryDTO struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	RightID     string  `json:"right_id"`
	RenewalID   string  `json:"renewal_id"`
	EffectiveAt string  `json:"effective_at"`
	Quantity    float64 `json:"quantity"`
	Type        string  `json:"type"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Reason      string  `json:"reason,omitempty"`
}

type CreateEntryRequest struct {
	ID             string  `json:"id,omitempty"` // generated when empty
	UserID         string  `json:"user_id"`
	RightID        string  `json:"right_id"`
	RenewalID      string  `json:"renewal_id"`
	EffectiveAt    string  `json:"effective_at"`
	Quantity       float64 `json:"quantity"`
	Type           string  `json:"type"`
	ReferenceID    string  `json:"reference_id,omitempty"`
	Reason         string  `json:"reason,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
}

// =============================================================================
// BENEFICIARY TYPES
// =============================================================================

type WaitingQuantityDTO struct {
	Created         float64 `json:"created"`
	CreatedDispUnit string  `json:"created_dispUnit"`
	Deleted         float64 `json:"deleted"`
	DeletedDispUnit string  `json:"deleted_dispUnit"`
}

type BeneficiaryRightDTO struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Unit             string  `json:"unit"`
	Quantity         float64 `json:"quantity"`
	QuantityDispUnit string  `json:"quantity_dispUnit"`
}

// RenewalStatsDTO is one renewal of a beneficiary. Quantities are omitted
// when the renewal was skipped or failed.
type RenewalStatsDTO struct {
	ID       string `json:"id"`
	Start    string `json:"start"`
	Finish   string `json:"finish"`
	Eligible bool   `json:"eligible"`
	InTotal  bool   `json:"in_total"`

	InitialQuantity           *float64            `json:"initial_quantity,omitempty"`
	InitialQuantityDispUnit   string              `json:"initial_quantity_dispUnit,omitempty"`
	ConsumedQuantity          *float64            `json:"consumed_quantity,omitempty"`
	ConsumedQuantityDispUnit  string              `json:"consumed_quantity_dispUnit,omitempty"`
	AvailableQuantity         *float64            `json:"available_quantity,omitempty"`
	AvailableQuantityDispUnit string              `json:"available_quantity_dispUnit,omitempty"`
	WaitingQuantity           *WaitingQuantityDTO `json:"waiting_quantity,omitempty"`
	DaysRatio                 *float64            `json:"daysRatio,omitempty"`
}

type RenewalErrorDTO struct {
	Renewal RenewalDTO `json:"renewal"`
	Message string     `json:"message"`
}

// BeneficiaryDTO is the balance of a user on a right.
type BeneficiaryDTO struct {
	UserID     string              `json:"user_id"`
	AccountID  string              `json:"account_id"`
	Moment     string              `json:"moment"`
	ComputedAt string              `json:"computed_at"`
	Right      BeneficiaryRightDTO `json:"right"`
	Renewals   []RenewalStatsDTO   `json:"renewals"`
	Errors     []RenewalErrorDTO   `json:"errors"`
	Degraded   bool                `json:"degraded"`
	DaysRatio  float64             `json:"daysRatio"`

	InitialQuantity           float64            `json:"initial_quantity"`
	InitialQuantityDispUnit   string             `json:"initial_quantity_dispUnit"`
	ConsumedQuantity          float64            `json:"consumed_quantity"`
	ConsumedQuantityDispUnit  string             `json:"consumed_quantity_dispUnit"`
	AvailableQuantity         float64            `json:"available_quantity"`
	AvailableQuantityDispUnit string             `json:"available_quantity_dispUnit"`
	WaitingQuantity           WaitingQuantityDTO `json:"waiting_quantity"`
}

type RollResultDTO struct {
	RightsChecked int          `json:"rights_checked"`
	Created       []RenewalDTO `json:"created"`
	Errors        []string     `json:"errors"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type HealthDTO struct {
	Status string `json:"status"`
}

// ErrorResponse is returned for all API errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func f64(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

func f64Ptr(d decimal.Decimal) *float64 {
	v := f64(d)
	return &v
}

func toUserDTO(u generic.User) UserDTO {
	return UserDTO{ID: string(u.ID), Name: u.Name, Email: u.Email}
}

func toRightDTO(r generic.Right) RightDTO {
	return RightDTO{ID: string(r.ID), Name: r.Name, Quantity: f64(r.Quantity), Unit: string(r.Unit)}
}

func toRenewalDTO(r generic.Renewal) RenewalDTO {
	return RenewalDTO{ID: string(r.ID), RightID: string(r.RightID), Start: r.Start.String(), Finish: r.Finish.String()}
}

func toAccountDTO(a generic.Account) AccountDTO {
	return AccountDTO{ID: string(a.ID), UserID: string(a.UserID), RightID: string(a.RightID), Arrival: a.Arrival.String()}
}

func toEntryDTO(e generic.Entry) EntryDTO {
	return EntryDTO{
		ID:          string(e.ID),
		UserID:      string(e.UserID),
		RightID:     string(e.RightID),
		RenewalID:   string(e.RenewalID),
		EffectiveAt: e.EffectiveAt.String(),
		Quantity:    f64(e.Quantity),
		Type:        string(e.Type),
		ReferenceID: e.ReferenceID,
		Reason:      e.Reason,
	}
}

func toWaitingDTO(w beneficiary.WaitingQuantity) WaitingQuantityDTO {
	return WaitingQuantityDTO{
		Created:         f64(w.Created.Value),
		CreatedDispUnit: w.Created.Display.Text,
		Deleted:         f64(w.Deleted.Value),
		DeletedDispUnit: w.Deleted.Display.Text,
	}
}

// ToBeneficiaryDTO converts a snapshot to its JSON form.
func ToBeneficiaryDTO(s beneficiary.Snapshot) BeneficiaryDTO {
	dto := BeneficiaryDTO{
		UserID:     string(s.UserID),
		AccountID:  string(s.AccountID),
		Moment:     s.Moment.String(),
		ComputedAt: s.ComputedAt.UTC().Format(time.RFC3339),
		Right: BeneficiaryRightDTO{
			ID:               string(s.Right.ID),
			Name:             s.Right.Name,
			Unit:             string(s.Right.Unit),
			Quantity:         f64(s.Right.Quantity.Value),
			QuantityDispUnit: s.Right.Quantity.Display.Text,
		},
		Renewals:  make([]RenewalStatsDTO, len(s.Renewals)),
		Errors:    make([]RenewalErrorDTO, len(s.Errors)),
		Degraded:  s.Degraded(),
		DaysRatio: f64(s.DaysRatio),

		InitialQuantity:           f64(s.Initial.Value),
		InitialQuantityDispUnit:   s.Initial.Display.Text,
		ConsumedQuantity:          f64(s.Consumed.Value),
		ConsumedQuantityDispUnit:  s.Consumed.Display.Text,
		AvailableQuantity:         f64(s.Available.Value),
		AvailableQuantityDispUnit: s.Available.Display.Text,
		WaitingQuantity:           toWaitingDTO(s.Waiting),
	}

	for i, rec := range s.Renewals {
		r := RenewalStatsDTO{
			ID:       string(rec.Renewal.ID),
			Start:    rec.Renewal.Start.String(),
			Finish:   rec.Renewal.Finish.String(),
			Eligible: rec.Eligible,
			InTotal:  rec.InTotal,
		}
		if q := rec.Quantities; q != nil {
			waiting := toWaitingDTO(q.Waiting)
			r.InitialQuantity = f64Ptr(q.Initial.Value)
			r.InitialQuantityDispUnit = q.Initial.Display.Text
			r.ConsumedQuantity = f64Ptr(q.Consumed.Value)
			r.ConsumedQuantityDispUnit = q.Consumed.Display.Text
			r.AvailableQuantity = f64Ptr(q.Available.Value)
			r.AvailableQuantityDispUnit = q.Available.Display.Text
			r.WaitingQuantity = &waiting
			r.DaysRatio = f64Ptr(q.DaysRatio)
		}
		dto.Renewals[i] = r
	}

	for i, e := range s.Errors {
		dto.Errors[i] = RenewalErrorDTO{Renewal: toRenewalDTO(e.Renewal), Message: e.Message}
	}
	return dto
}
