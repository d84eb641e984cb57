/*
Package generic provides the shared vocabulary of the renewal engine.

PURPOSE:
  This package contains the domain-agnostic types used by every other
  package: quantities, identifiers, dates, periods, the ledger entry and
  the raw per-renewal statistics. It has no knowledge of HTTP, storage
  engines or how a beneficiary snapshot is assembled.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A quantity with a unit (e.g., 5 days, 7.5 hours)
  - Entry: An immutable ledger line recording a consumption or adjustment
  - QuantityStats: The computed figures of one renewal for one user
  - IDs: Type-safe identifiers for rights, renewals, accounts and users

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point drift
  3. Type Safety: Distinct ID types prevent mixing a right with a renewal

USAGE:
  qty := generic.NewAmount(25, generic.UnitDays)
  e := generic.Entry{
      UserID:    "u-1",
      RightID:   "annual-leave",
      RenewalID: "annual-leave-2025",
      Quantity:  generic.NewDecimal(2),
      Type:      generic.EntryConsumption,
  }

SEE ALSO:
  - period.go: Period bounds and coverage test
  - ledger.go: Entry persistence interface
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays  Unit = "days"
	UnitHours Unit = "hours"
)

// Valid reports whether u is a unit a right can be expressed in.
func (u Unit) Valid() bool {
	return u == UnitDays || u == UnitHours
}

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func NewDecimal(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Unit: a.Unit} }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RightID string
type RenewalID string
type AccountID string
type UserID string
type EntryID string

// =============================================================================
// QUANTITY STATS - Computed figures of one renewal for one user
// =============================================================================

// WaitingQuantity holds adjustments that are requested but not settled yet.
// Created is quantity waiting to be consumed, Deleted is quantity waiting
// to be given back.
type WaitingQuantity struct {
	Created decimal.Decimal
	Deleted decimal.Decimal
}

// QuantityStats is the result of computing one renewal for one user.
//
// DaysRatio is the share of the renewal the user was present for, in [0, 1].
// A zero DaysRatio means "not applicable" and never takes part in the
// beneficiary ratio selection.
type QuantityStats struct {
	Initial   decimal.Decimal
	Consumed  decimal.Decimal
	Available decimal.Decimal
	Waiting   WaitingQuantity
	DaysRatio decimal.Decimal
}

// =============================================================================
// ENTRY - Append-only ledger line
// =============================================================================

type EntryType string

const (
	EntryConsumption    EntryType = "consumption"     // Approved absence, settled
	EntryWaitingCreated EntryType = "waiting_created" // Absence request awaiting approval
	EntryWaitingDeleted EntryType = "waiting_deleted" // Absence cancellation awaiting approval
	EntryAdjustment     EntryType = "adjustment"      // Manual change to the granted quantity
	EntryReversal       EntryType = "reversal"        // Undo a previous consumption
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryConsumption, EntryWaitingCreated, EntryWaitingDeleted, EntryAdjustment, EntryReversal:
		return true
	}
	return false
}

// Entry is one immutable line of the ledger. Quantities are always stored
// as positive numbers; the Type decides how they are counted.
type Entry struct {
	ID             EntryID
	UserID         UserID
	RightID        RightID
	RenewalID      RenewalID
	EffectiveAt    TimePoint
	Quantity       decimal.Decimal
	Type           EntryType
	ReferenceID    string
	Reason         string
	IdempotencyKey string

	CreatedBy string
	CreatedAt TimePoint
}
