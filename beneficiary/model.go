/*
Package beneficiary builds the balance snapshot of a user on a right.

PURPOSE:
  A beneficiary is the (user, account, right) combination. Its balance is
  spread over the renewals of the right: every renewal has its own granted,
  consumed, available and waiting quantities. This package merges those
  per-renewal figures into one snapshot as of a reference moment.

KEY CONCEPTS:
  - RenewalPeriod: a renewal plus the capability to compute its stats
  - ShouldFetch: skips renewals that closed before the user arrived
  - Aggregator: fans out the fetches, joins them, folds totals and ratio
  - UnitPresenter: turns raw quantities into display values
  - Snapshot: the immutable result handed to presentation layers

FAILURE MODEL:
  A renewal whose stats cannot be computed is reported in Snapshot.Errors
  and the remaining renewals are still aggregated. Only contract
  violations (malformed renewal, missing collaborator) fail the call.

EXAMPLE:
  agg := beneficiary.NewAggregator(generic.RealClock{}, logger)
  snap, err := agg.Aggregate(ctx, right, account, "u-1", periods, generic.Today())

SEE ALSO:
  - rights/stats.go: StatsFetcher implementation replaying the ledger
  - rights/presenter.go: UnitPresenter implementation
*/
package beneficiary

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/renewal-engine/generic"
)

// =============================================================================
// COLLABORATOR CONTRACTS
// =============================================================================

// StatsFetcher computes the raw statistics of one renewal for a user.
// Implementations may block and may fail; retry policy belongs to them.
type StatsFetcher interface {
	FetchUserStats(ctx context.Context, user generic.UserID) (generic.QuantityStats, error)
}

// StatsFetcherFunc adapts a function to StatsFetcher.
type StatsFetcherFunc func(ctx context.Context, user generic.UserID) (generic.QuantityStats, error)

func (f StatsFetcherFunc) FetchUserStats(ctx context.Context, user generic.UserID) (generic.QuantityStats, error) {
	return f(ctx, user)
}

// DisplayValue is a quantity ready to be shown, e.g. {2.5, days, "2.5 days"}.
type DisplayValue struct {
	Value decimal.Decimal
	Unit  generic.Unit
	Text  string
}

// UnitPresenter converts a raw quantity of a right into its display value.
// It must be pure from the caller's point of view.
type UnitPresenter interface {
	DisplayUnit(value decimal.Decimal) DisplayValue
}

// PresenterFunc adapts a function to UnitPresenter.
type PresenterFunc func(value decimal.Decimal) DisplayValue

func (f PresenterFunc) DisplayUnit(value decimal.Decimal) DisplayValue {
	return f(value)
}

// =============================================================================
// INPUTS
// =============================================================================

// Right is a right definition together with its unit presenter.
type Right struct {
	generic.Right
	Presenter UnitPresenter
}

// RenewalPeriod is one renewal of the right and the way to compute its stats.
type RenewalPeriod struct {
	Renewal generic.Renewal
	Stats   StatsFetcher
}

func (p RenewalPeriod) Period() generic.Period {
	return p.Renewal.Period()
}
