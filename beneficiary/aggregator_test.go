package beneficiary_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/renewal-engine/beneficiary"
	"github.com/warp/renewal-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func daysPresenter() beneficiary.UnitPresenter {
	return beneficiary.PresenterFunc(func(v decimal.Decimal) beneficiary.DisplayValue {
		return beneficiary.DisplayValue{Value: v, Unit: generic.UnitDays, Text: v.String() + "d"}
	})
}

func testRight() beneficiary.Right {
	return beneficiary.Right{
		Right: generic.Right{
			ID:       "annual",
			Name:     "Annual leave",
			Quantity: dec(25),
			Unit:     generic.UnitDays,
		},
		Presenter: daysPresenter(),
	}
}

func stats(initial, consumed, available, created, deleted, ratio float64) generic.QuantityStats {
	return generic.QuantityStats{
		Initial:   dec(initial),
		Consumed:  dec(consumed),
		Available: dec(available),
		Waiting:   generic.WaitingQuantity{Created: dec(created), Deleted: dec(deleted)},
		DaysRatio: dec(ratio),
	}
}

// fakeFetcher returns canned stats and counts its calls.
type fakeFetcher struct {
	stats generic.QuantityStats
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeFetcher) FetchUserStats(ctx context.Context, _ generic.UserID) (generic.QuantityStats, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return generic.QuantityStats{}, ctx.Err()
		}
	}
	return f.stats, f.err
}

func period(id string, start, finish generic.TimePoint, f beneficiary.StatsFetcher) beneficiary.RenewalPeriod {
	return beneficiary.RenewalPeriod{
		Renewal: generic.Renewal{ID: generic.RenewalID(id), RightID: "annual", Start: start, Finish: finish},
		Stats:   f,
	}
}

// pastClock pins "now" after every renewal used in these tests.
func pastClock() generic.Clock {
	return generic.FixedClock{At: time.Date(2030, time.January, 1, 12, 0, 0, 0, time.UTC)}
}

func newAggregator(clock generic.Clock) *beneficiary.Aggregator {
	return beneficiary.NewAggregator(clock, zerolog.Nop())
}

func requireDecimal(t *testing.T, want float64, got decimal.Decimal, msg string) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "%s: want %v, got %v", msg, want, got)
}

// =============================================================================
// TOTALS AND COVERAGE
// =============================================================================

func TestAggregate_OnlyCoveringRenewalCountsInTotals(t *testing.T) {
	// GIVEN: January and February renewals
	// WHEN: Aggregating as of February 15
	// THEN: Only February contributes to totals and its ratio is kept

	jan := &fakeFetcher{stats: stats(10, 4, 6, 0, 0, 1)}
	feb := &fakeFetcher{stats: stats(10, 2, 8, 1, 0, 0.5)}
	periods := []beneficiary.RenewalPeriod{
		period("jan", date(2025, time.January, 1), date(2025, time.January, 31), jan),
		period("feb", date(2025, time.February, 1), date(2025, time.February, 28), feb),
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{ID: "acc-1"}, "u-1", periods, date(2025, time.February, 15))
	require.NoError(t, err)

	requireDecimal(t, 10, snap.Initial.Value, "initial")
	requireDecimal(t, 2, snap.Consumed.Value, "consumed")
	requireDecimal(t, 8, snap.Available.Value, "available")
	requireDecimal(t, 1, snap.Waiting.Created.Value, "waiting created")
	requireDecimal(t, 0, snap.Waiting.Deleted.Value, "waiting deleted")
	requireDecimal(t, 0.5, snap.DaysRatio, "days ratio")

	require.Len(t, snap.Renewals, 2)
	assert.False(t, snap.Renewals[0].InTotal)
	assert.True(t, snap.Renewals[1].InTotal)
	require.NotNil(t, snap.Renewals[0].Quantities, "uncovered renewal is still listed with its stats")
	requireDecimal(t, 4, snap.Renewals[0].Quantities.Consumed.Value, "january consumed")
	assert.Empty(t, snap.Errors)
}

func TestAggregate_OverlappingCoveredRenewalsAreSummed(t *testing.T) {
	// GIVEN: Two renewals both covering the moment
	// WHEN: Aggregating
	// THEN: Each is counted exactly once

	a := &fakeFetcher{stats: stats(10, 1, 9, 2, 1, 1)}
	b := &fakeFetcher{stats: stats(5, 2, 3, 0, 1, 1)}
	periods := []beneficiary.RenewalPeriod{
		period("a", date(2025, time.January, 1), date(2025, time.December, 31), a),
		period("b", date(2025, time.June, 1), date(2026, time.May, 31), b),
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.July, 1))
	require.NoError(t, err)

	requireDecimal(t, 15, snap.Initial.Value, "initial")
	requireDecimal(t, 3, snap.Consumed.Value, "consumed")
	requireDecimal(t, 12, snap.Available.Value, "available")
	requireDecimal(t, 2, snap.Waiting.Created.Value, "waiting created")
	requireDecimal(t, 2, snap.Waiting.Deleted.Value, "waiting deleted")
}

func TestAggregate_MomentOnBoundsIsCovered(t *testing.T) {
	// GIVEN: A renewal
	// WHEN: The moment is its start or its finish
	// THEN: The renewal is in total both times

	f := &fakeFetcher{stats: stats(10, 0, 10, 0, 0, 1)}
	periods := []beneficiary.RenewalPeriod{
		period("y", date(2025, time.January, 1), date(2025, time.December, 31), f),
	}
	agg := newAggregator(pastClock())

	for _, moment := range []generic.TimePoint{date(2025, time.January, 1), date(2025, time.December, 31)} {
		snap, err := agg.Aggregate(context.Background(), testRight(), generic.Account{}, "u-1", periods, moment)
		require.NoError(t, err)
		requireDecimal(t, 10, snap.Initial.Value, "initial at "+moment.String())
	}
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

func TestAggregate_ArrivalAfterFinish_NoFetchNoTotals(t *testing.T) {
	// GIVEN: Account arrived March 1, renewal finished February 28
	// WHEN: Aggregating as of February 15
	// THEN: One record without stats, no error, zero totals, fetcher never called

	f := &fakeFetcher{stats: stats(10, 1, 9, 0, 0, 1)}
	periods := []beneficiary.RenewalPeriod{
		period("feb", date(2025, time.February, 1), date(2025, time.February, 28), f),
	}
	account := generic.Account{ID: "acc-1", Arrival: date(2025, time.March, 1)}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		account, "u-1", periods, date(2025, time.February, 15))
	require.NoError(t, err)

	assert.Equal(t, int32(0), f.calls.Load(), "ineligible renewal must not be fetched")
	require.Len(t, snap.Renewals, 1)
	assert.False(t, snap.Renewals[0].Eligible)
	assert.Nil(t, snap.Renewals[0].Quantities)
	assert.Empty(t, snap.Errors)
	requireDecimal(t, 0, snap.Initial.Value, "initial")
	requireDecimal(t, 0, snap.Consumed.Value, "consumed")
	requireDecimal(t, 0, snap.Available.Value, "available")
	requireDecimal(t, 0, snap.Waiting.Created.Value, "waiting created")
	requireDecimal(t, 1, snap.DaysRatio, "days ratio keeps its default")
}

func TestAggregate_UnsetArrival_AlwaysFetched(t *testing.T) {
	f1 := &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 1)}
	f2 := &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 1)}
	periods := []beneficiary.RenewalPeriod{
		period("old", date(2000, time.January, 1), date(2000, time.December, 31), f1),
		period("new", date(2025, time.January, 1), date(2025, time.December, 31), f2),
	}

	_, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.March, 1))
	require.NoError(t, err)

	assert.Equal(t, int32(1), f1.calls.Load())
	assert.Equal(t, int32(1), f2.calls.Load())
}

// =============================================================================
// FAILURE ISOLATION
// =============================================================================

func TestAggregate_FailedRenewal_RecordedOthersKept(t *testing.T) {
	// GIVEN: Three renewals covering the moment, the middle one fails
	// WHEN: Aggregating
	// THEN: The failure is listed against that renewal and the two others are totaled

	boom := errors.New("upstream computation failed")
	a := &fakeFetcher{stats: stats(10, 1, 9, 0, 0, 1)}
	b := &fakeFetcher{err: boom}
	c := &fakeFetcher{stats: stats(5, 1, 4, 1, 0, 1)}
	periods := []beneficiary.RenewalPeriod{
		period("a", date(2025, time.January, 1), date(2025, time.December, 31), a),
		period("b", date(2025, time.January, 1), date(2025, time.December, 31), b),
		period("c", date(2025, time.January, 1), date(2025, time.December, 31), c),
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.May, 1))
	require.NoError(t, err, "per-renewal failures never fail the call")

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, generic.RenewalID("b"), snap.Errors[0].Renewal.ID)
	assert.Equal(t, boom.Error(), snap.Errors[0].Message)
	assert.ErrorIs(t, snap.Errors[0].Err, boom)
	var fetchErr *generic.PeriodFetchError
	require.ErrorAs(t, snap.Errors[0].Err, &fetchErr)
	assert.Equal(t, generic.RenewalID("b"), fetchErr.RenewalID)
	assert.True(t, snap.Degraded())

	require.Len(t, snap.Renewals, 3)
	assert.NotNil(t, snap.Renewals[0].Quantities)
	assert.Nil(t, snap.Renewals[1].Quantities)
	assert.NotNil(t, snap.Renewals[2].Quantities)

	requireDecimal(t, 15, snap.Initial.Value, "initial")
	requireDecimal(t, 2, snap.Consumed.Value, "consumed")
	requireDecimal(t, 13, snap.Available.Value, "available")
	requireDecimal(t, 1, snap.Waiting.Created.Value, "waiting created")

	_, found := snap.ErrorFor("b")
	assert.True(t, found)
}

func TestAggregate_AllRenewalsFail_ErrorsInInputOrder(t *testing.T) {
	periods := make([]beneficiary.RenewalPeriod, 0, 4)
	for i := 0; i < 4; i++ {
		f := &fakeFetcher{err: fmt.Errorf("failure %d", i), delay: time.Duration(4-i) * 5 * time.Millisecond}
		periods = append(periods, period(fmt.Sprintf("r%d", i),
			date(2025, time.January, 1), date(2025, time.December, 31), f))
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.May, 1))
	require.NoError(t, err)

	require.Len(t, snap.Errors, 4)
	for i, e := range snap.Errors {
		assert.Equal(t, generic.RenewalID(fmt.Sprintf("r%d", i)), e.Renewal.ID)
		assert.Equal(t, fmt.Sprintf("failure %d", i), e.Message)
	}
	requireDecimal(t, 0, snap.Initial.Value, "initial")
}

func TestAggregate_PanickingFetcher_IsolatedAsError(t *testing.T) {
	panicky := beneficiary.StatsFetcherFunc(func(context.Context, generic.UserID) (generic.QuantityStats, error) {
		panic("nil renewal state")
	})
	ok := &fakeFetcher{stats: stats(3, 0, 3, 0, 0, 1)}
	periods := []beneficiary.RenewalPeriod{
		period("bad", date(2025, time.January, 1), date(2025, time.December, 31), panicky),
		period("good", date(2025, time.January, 1), date(2025, time.December, 31), ok),
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.May, 1))
	require.NoError(t, err)

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, generic.RenewalID("bad"), snap.Errors[0].Renewal.ID)
	assert.Contains(t, snap.Errors[0].Message, "panicked")
	requireDecimal(t, 3, snap.Initial.Value, "initial")
}

func TestAggregate_CallerTimeout_IsPerRenewalFailure(t *testing.T) {
	// GIVEN: One slow renewal and one fast renewal
	// WHEN: The caller imposes a deadline shorter than the slow fetch
	// THEN: Only the slow renewal is reported as failed

	slow := &fakeFetcher{stats: stats(10, 0, 10, 0, 0, 1), delay: 2 * time.Second}
	fast := &fakeFetcher{stats: stats(4, 1, 3, 0, 0, 1)}
	periods := []beneficiary.RenewalPeriod{
		period("slow", date(2025, time.January, 1), date(2025, time.December, 31), slow),
		period("fast", date(2025, time.January, 1), date(2025, time.December, 31), fast),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	snap, err := newAggregator(pastClock()).Aggregate(ctx, testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.May, 1))
	require.NoError(t, err)

	require.Len(t, snap.Errors, 1)
	assert.Equal(t, generic.RenewalID("slow"), snap.Errors[0].Renewal.ID)
	assert.ErrorIs(t, snap.Errors[0].Err, context.DeadlineExceeded)
	requireDecimal(t, 4, snap.Initial.Value, "initial")
}

// =============================================================================
// ORDERING AND CONCURRENCY
// =============================================================================

func TestAggregate_OrderPreservedRegardlessOfCompletion(t *testing.T) {
	// GIVEN: Renewals whose fetches complete in reverse order
	// WHEN: Aggregating
	// THEN: Records follow the input order

	var periods []beneficiary.RenewalPeriod
	for i := 0; i < 5; i++ {
		f := &fakeFetcher{
			stats: stats(float64(i+1), 0, float64(i+1), 0, 0, 1),
			delay: time.Duration(5-i) * 10 * time.Millisecond,
		}
		start := date(2020+i, time.January, 1)
		periods = append(periods, period(fmt.Sprintf("y%d", 2020+i), start, start.AddYears(1).AddDays(-1), f))
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2022, time.June, 1))
	require.NoError(t, err)

	require.Len(t, snap.Renewals, len(periods))
	for i, rec := range snap.Renewals {
		assert.Equal(t, periods[i].Renewal.ID, rec.Renewal.ID)
		require.NotNil(t, rec.Quantities)
		requireDecimal(t, float64(i+1), rec.Quantities.Initial.Value, "record initial")
	}
	requireDecimal(t, 3, snap.Initial.Value, "only 2022 is covered")
}

func TestAggregate_FetchesRunConcurrently(t *testing.T) {
	// GIVEN: N fetchers that each wait until all N have started
	// WHEN: Aggregating
	// THEN: No fetch times out, which only happens if they run in parallel

	const n = 6
	var started sync.WaitGroup
	started.Add(n)
	allStarted := make(chan struct{})
	go func() {
		started.Wait()
		close(allStarted)
	}()

	barrier := beneficiary.StatsFetcherFunc(func(ctx context.Context, _ generic.UserID) (generic.QuantityStats, error) {
		started.Done()
		select {
		case <-allStarted:
			return stats(1, 0, 1, 0, 0, 1), nil
		case <-time.After(2 * time.Second):
			return generic.QuantityStats{}, errors.New("fetches were serialized")
		}
	})

	var periods []beneficiary.RenewalPeriod
	for i := 0; i < n; i++ {
		periods = append(periods, period(fmt.Sprintf("r%d", i),
			date(2025, time.January, 1), date(2025, time.December, 31), barrier))
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.May, 1))
	require.NoError(t, err)
	assert.Empty(t, snap.Errors)
	requireDecimal(t, n, snap.Initial.Value, "initial")
}

func TestAggregate_MaxConcurrency_StillFetchesAll(t *testing.T) {
	var inFlight, peak atomic.Int32
	f := beneficiary.StatsFetcherFunc(func(context.Context, generic.UserID) (generic.QuantityStats, error) {
		cur := inFlight.Add(1)
		for {
			p := peak.Load()
			if cur <= p || peak.CompareAndSwap(p, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return stats(1, 0, 1, 0, 0, 1), nil
	})

	var periods []beneficiary.RenewalPeriod
	for i := 0; i < 8; i++ {
		periods = append(periods, period(fmt.Sprintf("r%d", i),
			date(2025, time.January, 1), date(2025, time.December, 31), f))
	}

	agg := newAggregator(pastClock())
	agg.MaxConcurrency = 2
	snap, err := agg.Aggregate(context.Background(), testRight(), generic.Account{}, "u-1", periods, date(2025, time.May, 1))
	require.NoError(t, err)

	requireDecimal(t, 8, snap.Initial.Value, "initial")
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

// =============================================================================
// DAYS RATIO SELECTION
// =============================================================================

func TestDaysRatio_SingleClosedRenewal_ItsRatio(t *testing.T) {
	f := &fakeFetcher{stats: stats(5, 0, 5, 0, 0, 0.25)}
	periods := []beneficiary.RenewalPeriod{
		period("y", date(2025, time.January, 1), date(2025, time.December, 31), f),
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.June, 1))
	require.NoError(t, err)
	requireDecimal(t, 0.25, snap.DaysRatio, "days ratio")
}

func TestDaysRatio_AllClosed_FirstCoveredWins(t *testing.T) {
	// GIVEN: Three covered renewals, all finished before "now"
	// WHEN: Aggregating
	// THEN: The first non-zero ratio in input order is kept

	periods := []beneficiary.RenewalPeriod{
		period("zero", date(2025, time.January, 1), date(2025, time.December, 31), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0)}),
		period("first", date(2025, time.January, 1), date(2025, time.December, 31), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.3)}),
		period("second", date(2025, time.March, 1), date(2025, time.September, 30), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.7)}),
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.June, 1))
	require.NoError(t, err)
	requireDecimal(t, 0.3, snap.DaysRatio, "days ratio")
}

func TestDaysRatio_LastOpenRenewalWins(t *testing.T) {
	// GIVEN: "now" is 2025-06-01, three covered renewals: closed, open, open
	// WHEN: Aggregating as of 2025-05-15
	// THEN: The last open renewal in input order provides the ratio

	now := generic.FixedClock{At: time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)}
	periods := []beneficiary.RenewalPeriod{
		period("closed", date(2025, time.May, 1), date(2025, time.May, 31), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.9)}),
		period("open-a", date(2025, time.January, 1), date(2025, time.December, 31), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.4)}),
		period("open-b", date(2025, time.April, 1), date(2026, time.March, 31), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.6)}),
	}

	snap, err := newAggregator(now).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.May, 15))
	require.NoError(t, err)
	requireDecimal(t, 0.6, snap.DaysRatio, "days ratio")
}

func TestDaysRatio_ClosedAfterOpen_DoesNotOverride(t *testing.T) {
	now := generic.FixedClock{At: time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)}
	periods := []beneficiary.RenewalPeriod{
		period("open", date(2025, time.January, 1), date(2025, time.December, 31), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.4)}),
		period("closed", date(2025, time.May, 1), date(2025, time.May, 31), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.9)}),
	}

	snap, err := newAggregator(now).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.May, 15))
	require.NoError(t, err)
	requireDecimal(t, 0.4, snap.DaysRatio, "days ratio")
}

func TestDaysRatio_UsesClockNotMoment(t *testing.T) {
	// GIVEN: A closed covered renewal followed by another covered renewal
	//        that finishes after the moment but before "now"
	// WHEN: Aggregating
	// THEN: The second renewal is not considered open, first ratio wins

	now := generic.FixedClock{At: time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)}
	periods := []beneficiary.RenewalPeriod{
		period("a", date(2025, time.January, 1), date(2025, time.December, 31), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.2)}),
		period("b", date(2025, time.January, 1), date(2026, time.June, 30), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.8)}),
	}

	snap, err := newAggregator(now).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.March, 1))
	require.NoError(t, err)
	requireDecimal(t, 0.2, snap.DaysRatio, "days ratio")
}

func TestDaysRatio_UncoveredRenewalsIgnored(t *testing.T) {
	periods := []beneficiary.RenewalPeriod{
		period("next", date(2026, time.January, 1), date(2026, time.December, 31), &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 0.1)}),
	}

	snap, err := newAggregator(generic.FixedClock{At: time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)}).
		Aggregate(context.Background(), testRight(), generic.Account{}, "u-1", periods, date(2025, time.June, 1))
	require.NoError(t, err)
	requireDecimal(t, 1, snap.DaysRatio, "days ratio")
}

// =============================================================================
// DISPLAY UNITS
// =============================================================================

func TestAggregate_DisplayValuesMirrorRawValues(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	right := testRight()
	right.Presenter = beneficiary.PresenterFunc(func(v decimal.Decimal) beneficiary.DisplayValue {
		mu.Lock()
		seen = append(seen, v.String())
		mu.Unlock()
		return beneficiary.DisplayValue{Value: v, Unit: generic.UnitHours, Text: v.String() + "h"}
	})

	periods := []beneficiary.RenewalPeriod{
		period("a", date(2025, time.January, 1), date(2025, time.December, 31), &fakeFetcher{stats: stats(7.5, 1.5, 6, 0.5, 0.25, 1)}),
	}

	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), right,
		generic.Account{}, "u-1", periods, date(2025, time.June, 1))
	require.NoError(t, err)

	assert.Equal(t, "25h", snap.Right.Quantity.Display.Text)
	assert.Equal(t, "7.5h", snap.Initial.Display.Text)
	assert.Equal(t, "1.5h", snap.Consumed.Display.Text)
	assert.Equal(t, "6h", snap.Available.Display.Text)
	assert.Equal(t, "0.5h", snap.Waiting.Created.Display.Text)
	assert.Equal(t, "0.25h", snap.Waiting.Deleted.Display.Text)

	q := snap.Renewals[0].Quantities
	require.NotNil(t, q)
	assert.Equal(t, "7.5h", q.Initial.Display.Text)
	assert.Equal(t, "0.25h", q.Waiting.Deleted.Display.Text)

	// 5 per renewal, 1 for the nominal quantity, 5 for the totals
	assert.Len(t, seen, 11)
}

// =============================================================================
// CONTRACT VIOLATIONS
// =============================================================================

func TestAggregate_FinishBeforeStart_FailsWholeCall(t *testing.T) {
	f := &fakeFetcher{stats: stats(1, 0, 1, 0, 0, 1)}
	periods := []beneficiary.RenewalPeriod{
		period("ok", date(2025, time.January, 1), date(2025, time.December, 31), f),
		period("bad", date(2025, time.December, 31), date(2025, time.January, 1), f),
	}

	_, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.June, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)

	var contractErr *generic.ContractError
	require.ErrorAs(t, err, &contractErr)
	assert.Equal(t, 1, contractErr.Index)
	assert.Equal(t, int32(0), f.calls.Load(), "no fetch is issued for a rejected call")
}

func TestAggregate_MissingFetcher_FailsWholeCall(t *testing.T) {
	periods := []beneficiary.RenewalPeriod{
		period("nofetch", date(2025, time.January, 1), date(2025, time.December, 31), nil),
	}

	_, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{}, "u-1", periods, date(2025, time.June, 1))
	assert.ErrorIs(t, err, generic.ErrMissingCapability)
}

func TestAggregate_MissingPresenter_FailsWholeCall(t *testing.T) {
	right := testRight()
	right.Presenter = nil

	_, err := newAggregator(pastClock()).Aggregate(context.Background(), right,
		generic.Account{}, "u-1", nil, date(2025, time.June, 1))
	assert.ErrorIs(t, err, generic.ErrMissingCapability)
}

func TestAggregate_NoRenewals_EmptySnapshot(t *testing.T) {
	snap, err := newAggregator(pastClock()).Aggregate(context.Background(), testRight(),
		generic.Account{ID: "acc-1"}, "u-1", nil, date(2025, time.June, 1))
	require.NoError(t, err)

	assert.Empty(t, snap.Renewals)
	assert.Empty(t, snap.Errors)
	requireDecimal(t, 1, snap.DaysRatio, "days ratio")
	requireDecimal(t, 25, snap.Right.Quantity.Value, "nominal quantity")
	assert.Equal(t, generic.AccountID("acc-1"), snap.AccountID)
	assert.Equal(t, generic.UserID("u-1"), snap.UserID)
}
