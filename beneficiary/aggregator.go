package beneficiary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/warp/renewal-engine/generic"
	"github.com/warp/renewal-engine/metrics"
)

// =============================================================================
// AGGREGATOR - Merges renewal stats into a beneficiary snapshot
// =============================================================================

// Aggregator builds beneficiary snapshots.
//
// All eligible renewals are fetched concurrently. Once every fetch has
// settled, records, totals and the days ratio are folded in input order, so
// the result does not depend on which fetch finished first.
type Aggregator struct {
	// Clock supplies "now" for the days ratio tie-break. Never the
	// reference moment.
	Clock  generic.Clock
	Logger zerolog.Logger

	// MaxConcurrency bounds in-flight fetches. Zero means one goroutine per
	// eligible renewal.
	MaxConcurrency int
}

func NewAggregator(clock generic.Clock, logger zerolog.Logger) *Aggregator {
	if clock == nil {
		clock = generic.RealClock{}
	}
	return &Aggregator{
		Clock:  clock,
		Logger: logger.With().Str("component", "aggregator").Logger(),
	}
}

type fetchResult struct {
	skipped bool
	stats   generic.QuantityStats
	err     error
}

// Aggregate computes the snapshot of a user on a right as of moment.
//
// Per-renewal failures are returned as Snapshot.Errors. The returned error is
// reserved for contract violations and wraps generic.ErrInvalidPeriod or
// generic.ErrMissingCapability.
func (a *Aggregator) Aggregate(
	ctx context.Context,
	right Right,
	account generic.Account,
	user generic.UserID,
	periods []RenewalPeriod,
	moment generic.TimePoint,
) (Snapshot, error) {
	started := time.Now()

	if err := validate(right, periods); err != nil {
		metrics.AggregationsTotal.WithLabelValues(metrics.OutcomeRejected).Inc()
		return Snapshot{}, err
	}

	results := a.fetchAll(ctx, account, user, periods)
	snap := a.fold(right, account, user, periods, results, moment)

	outcome := metrics.OutcomeComplete
	if snap.Degraded() {
		outcome = metrics.OutcomeDegraded
	}
	metrics.AggregationsTotal.WithLabelValues(outcome).Inc()
	metrics.AggregationDuration.Observe(time.Since(started).Seconds())

	a.Logger.Debug().
		Str("right", string(right.ID)).
		Str("user", string(user)).
		Str("moment", moment.String()).
		Int("renewals", len(periods)).
		Int("errors", len(snap.Errors)).
		Dur("took", time.Since(started)).
		Msg("beneficiary aggregated")

	return snap, nil
}

func validate(right Right, periods []RenewalPeriod) error {
	if right.Presenter == nil {
		return &generic.ContractError{Index: -1, Field: "presenter", Reason: generic.ErrMissingCapability}
	}
	for i, p := range periods {
		if err := p.Period().Validate(); err != nil {
			return &generic.ContractError{Index: i, Field: "period", Reason: err}
		}
		if p.Stats == nil {
			return &generic.ContractError{Index: i, Field: "stats", Reason: generic.ErrMissingCapability}
		}
	}
	return nil
}

// fetchAll requests every eligible renewal in parallel. Each goroutine owns
// one slot of the result slice and always returns nil, so a failure never
// cancels its siblings.
func (a *Aggregator) fetchAll(ctx context.Context, account generic.Account, user generic.UserID, periods []RenewalPeriod) []fetchResult {
	results := make([]fetchResult, len(periods))

	g, gctx := errgroup.WithContext(ctx)
	if a.MaxConcurrency > 0 {
		g.SetLimit(a.MaxConcurrency)
	}

	for i, p := range periods {
		if !ShouldFetch(account, p.Renewal) {
			results[i].skipped = true
			continue
		}
		g.Go(func() error {
			stats, err := fetchOne(gctx, p.Stats, user)
			results[i] = fetchResult{stats: stats, err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func fetchOne(ctx context.Context, f StatsFetcher, user generic.UserID) (stats generic.QuantityStats, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stats fetcher panicked: %v", r)
		}
	}()
	return f.FetchUserStats(ctx, user)
}

// fold merges settled results in input order.
func (a *Aggregator) fold(
	right Right,
	account generic.Account,
	user generic.UserID,
	periods []RenewalPeriod,
	results []fetchResult,
	moment generic.TimePoint,
) Snapshot {
	now := a.Clock.Now()
	p := right.Presenter

	var (
		records   = make([]RenewalRecord, len(periods))
		errs      []PeriodError
		initial   = decimal.Zero
		consumed  = decimal.Zero
		available = decimal.Zero
		created   = decimal.Zero
		deleted   = decimal.Zero

		ratio    = decimal.NewFromInt(1)
		ratioSet bool
	)

	for i, period := range periods {
		res := results[i]
		rec := RenewalRecord{
			Renewal:  period.Renewal,
			Eligible: !res.skipped,
			InTotal:  period.Period().Contains(moment),
		}

		switch {
		case res.skipped:
			metrics.PeriodFetchesTotal.WithLabelValues(metrics.FetchSkipped).Inc()

		case res.err != nil:
			metrics.PeriodFetchesTotal.WithLabelValues(metrics.FetchFailed).Inc()
			errs = append(errs, PeriodError{
				Renewal: period.Renewal,
				Message: errorMessage(res.err),
				Err:     &generic.PeriodFetchError{RenewalID: period.Renewal.ID, Err: res.err},
			})
			a.Logger.Warn().
				Err(res.err).
				Str("right", string(right.ID)).
				Str("user", string(user)).
				Str("renewal", string(period.Renewal.ID)).
				Msg("renewal stats unavailable")

		default:
			metrics.PeriodFetchesTotal.WithLabelValues(metrics.FetchOK).Inc()
			s := res.stats
			rec.Quantities = &RenewalQuantities{
				Initial:   present(p, s.Initial),
				Consumed:  present(p, s.Consumed),
				Available: present(p, s.Available),
				Waiting: WaitingQuantity{
					Created: present(p, s.Waiting.Created),
					Deleted: present(p, s.Waiting.Deleted),
				},
				DaysRatio: s.DaysRatio,
			}

			if rec.InTotal {
				initial = initial.Add(s.Initial)
				consumed = consumed.Add(s.Consumed)
				available = available.Add(s.Available)
				created = created.Add(s.Waiting.Created)
				deleted = deleted.Add(s.Waiting.Deleted)

				// The first covered ratio is taken, then only renewals still
				// open at "now" may replace it: the last open one wins.
				if !s.DaysRatio.IsZero() && (!ratioSet || period.Renewal.Finish.EndOfDay().After(now)) {
					ratio = s.DaysRatio
					ratioSet = true
				}
			}
		}

		records[i] = rec
	}

	return Snapshot{
		Right: RightSummary{
			ID:       right.ID,
			Name:     right.Name,
			Unit:     right.Unit,
			Quantity: present(p, right.Quantity),
		},
		AccountID:  account.ID,
		UserID:     user,
		Moment:     moment,
		ComputedAt: now,
		Renewals:   records,
		DaysRatio:  ratio,
		Errors:     errs,
		Initial:    present(p, initial),
		Consumed:   present(p, consumed),
		Available:  present(p, available),
		Waiting: WaitingQuantity{
			Created: present(p, created),
			Deleted: present(p, deleted),
		},
	}
}

func errorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out: " + err.Error()
	}
	return err.Error()
}
