/*
stats.go - Renewal statistics replayed from the ledger

PURPOSE:
  Implements the per-renewal statistics consumed by the beneficiary
  aggregator. Nothing is stored: every call replays the ledger entries of
  the (user, right, renewal) triple.

FORMULAS:
  DaysRatio = days present in the renewal / days of the renewal
              present from max(start, arrival) to finish, 1 when the user
              was there the whole renewal, 0 when arrived after finish
  Initial   = round(Quantity * DaysRatio, 2) + adjustments
  Consumed  = consumptions - reversals
  Waiting   = {Created: sum(waiting_created), Deleted: sum(waiting_deleted)}
  Available = Initial - Consumed - Waiting.Created

PRORATION EXAMPLE:
  Right of 25 days, renewal 2025-01-01..2025-12-31 (365 days)
  User arrived 2025-07-02: present 183 days
  DaysRatio = 0.5014, Initial = 12.54

SEE ALSO:
  - generic/ledger.go: Entry source
  - beneficiary/aggregator.go: Consumer of the stats
*/
package rights

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/renewal-engine/beneficiary"
	"github.com/warp/renewal-engine/generic"
)

// RatioPlaces is the precision of the days ratio.
const RatioPlaces = 4

// StatsCalculator computes renewal statistics from the ledger.
type StatsCalculator struct {
	Ledger generic.Ledger
	Logger zerolog.Logger
}

func NewStatsCalculator(ledger generic.Ledger, logger zerolog.Logger) *StatsCalculator {
	return &StatsCalculator{
		Ledger: ledger,
		Logger: logger.With().Str("component", "stats").Logger(),
	}
}

// Compute returns the statistics of a user on one renewal of a right.
func (c *StatsCalculator) Compute(
	ctx context.Context,
	user generic.UserID,
	arrival generic.TimePoint,
	right generic.Right,
	renewal generic.Renewal,
) (generic.QuantityStats, error) {
	if err := ctx.Err(); err != nil {
		return generic.QuantityStats{}, err
	}
	if err := renewal.Period().Validate(); err != nil {
		return generic.QuantityStats{}, err
	}

	entries, err := c.Ledger.Entries(ctx, user, right.ID, renewal.ID)
	if err != nil {
		return generic.QuantityStats{}, fmt.Errorf("load entries of renewal %s: %w", renewal.ID, err)
	}

	ratio := DaysRatio(arrival, renewal)
	stats := generic.QuantityStats{
		Initial:   right.Quantity.Mul(ratio).Round(2),
		Consumed:  decimal.Zero,
		DaysRatio: ratio,
		Waiting: generic.WaitingQuantity{
			Created: decimal.Zero,
			Deleted: decimal.Zero,
		},
	}

	for _, e := range entries {
		switch e.Type {
		case generic.EntryAdjustment:
			stats.Initial = stats.Initial.Add(e.Quantity)
		case generic.EntryConsumption:
			stats.Consumed = stats.Consumed.Add(e.Quantity)
		case generic.EntryReversal:
			stats.Consumed = stats.Consumed.Sub(e.Quantity)
		case generic.EntryWaitingCreated:
			stats.Waiting.Created = stats.Waiting.Created.Add(e.Quantity)
		case generic.EntryWaitingDeleted:
			stats.Waiting.Deleted = stats.Waiting.Deleted.Add(e.Quantity)
		}
	}
	stats.Available = stats.Initial.Sub(stats.Consumed).Sub(stats.Waiting.Created)

	c.Logger.Trace().
		Str("user", string(user)).
		Str("renewal", string(renewal.ID)).
		Int("entries", len(entries)).
		Msg("renewal stats computed")

	return stats, nil
}

// Period binds a renewal to the calculator for one account.
func (c *StatsCalculator) Period(account generic.Account, right generic.Right, renewal generic.Renewal) beneficiary.RenewalPeriod {
	return beneficiary.RenewalPeriod{
		Renewal: renewal,
		Stats: beneficiary.StatsFetcherFunc(func(ctx context.Context, user generic.UserID) (generic.QuantityStats, error) {
			return c.Compute(ctx, user, account.Arrival, right, renewal)
		}),
	}
}

// DaysRatio is the share of the renewal the user was present for.
func DaysRatio(arrival generic.TimePoint, renewal generic.Renewal) decimal.Decimal {
	if arrival.IsZero() || !arrival.After(renewal.Start) {
		return decimal.NewFromInt(1)
	}
	if arrival.After(renewal.Finish) {
		return decimal.Zero
	}
	present := generic.Period{Start: arrival, End: renewal.Finish}.Days()
	total := renewal.Period().Days()
	return decimal.NewFromInt(int64(present)).DivRound(decimal.NewFromInt(int64(total)), RatioPlaces)
}
