package beneficiary

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/renewal-engine/generic"
)

// =============================================================================
// SNAPSHOT - Beneficiary balance as of a reference moment
// =============================================================================

// Quantity is a raw value and its display mirror.
type Quantity struct {
	Value   decimal.Decimal
	Display DisplayValue
}

// WaitingQuantity mirrors generic.WaitingQuantity with display values.
type WaitingQuantity struct {
	Created Quantity
	Deleted Quantity
}

// RenewalQuantities are the statistics of one renewal with display mirrors.
type RenewalQuantities struct {
	Initial   Quantity
	Consumed  Quantity
	Available Quantity
	Waiting   WaitingQuantity
	DaysRatio decimal.Decimal
}

// RenewalRecord is one renewal of the snapshot, in input order.
//
// Quantities is nil when the renewal was not fetched (the user arrived after
// it finished) or when its fetch failed; the failure is then listed in
// Snapshot.Errors.
type RenewalRecord struct {
	Renewal    generic.Renewal
	Eligible   bool
	InTotal    bool // the renewal covers the reference moment
	Quantities *RenewalQuantities
}

// PeriodError records a renewal whose statistics could not be computed.
type PeriodError struct {
	Renewal generic.Renewal
	Message string
	Err     error
}

// RightSummary is the right part of a snapshot.
type RightSummary struct {
	ID       generic.RightID
	Name     string
	Unit     generic.Unit
	Quantity Quantity
}

// Snapshot is the aggregated balance of one beneficiary.
//
// Totals only include renewals whose [Start, Finish] contains Moment. Every
// other renewal is still listed in Renewals.
type Snapshot struct {
	Right      RightSummary
	AccountID  generic.AccountID
	UserID     generic.UserID
	Moment     generic.TimePoint
	ComputedAt time.Time

	Renewals  []RenewalRecord
	DaysRatio decimal.Decimal
	Errors    []PeriodError

	Initial   Quantity
	Consumed  Quantity
	Available Quantity
	Waiting   WaitingQuantity
}

// Degraded reports whether at least one renewal failed to compute.
func (s Snapshot) Degraded() bool {
	return len(s.Errors) > 0
}

// ErrorFor returns the failure recorded for a renewal, if any.
func (s Snapshot) ErrorFor(id generic.RenewalID) (PeriodError, bool) {
	for _, e := range s.Errors {
		if e.Renewal.ID == id {
			return e, true
		}
	}
	return PeriodError{}, false
}

func present(p UnitPresenter, v decimal.Decimal) Quantity {
	return Quantity{Value: v, Display: p.DisplayUnit(v)}
}
