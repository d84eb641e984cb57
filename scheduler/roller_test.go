package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/renewal-engine/generic"
	"github.com/warp/renewal-engine/generic/store"
	"github.com/warp/renewal-engine/scheduler"
)

func date(y int, m time.Month, d int) generic.TimePoint {
	return generic.NewTimePoint(y, m, d)
}

func newRoller(t *testing.T, today generic.TimePoint) (*scheduler.RenewalRoller, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	clock := generic.FixedClock{At: today.Time.Add(3 * time.Hour)}
	return scheduler.NewRenewalRoller(mem, clock, zerolog.Nop()), mem
}

func seed(t *testing.T, mem *store.Memory, id generic.RightID, renewals ...generic.Renewal) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mem.SaveRight(ctx, generic.Right{ID: id, Name: string(id), Quantity: decimal.NewFromInt(25), Unit: generic.UnitDays}))
	for _, r := range renewals {
		require.NoError(t, mem.SaveRenewal(ctx, r))
	}
}

func TestRunOnce_YearlyRight_CatchesUpToToday(t *testing.T) {
	// GIVEN: A yearly right whose latest renewal is 2023
	// WHEN: Rolling on 2025-03-10
	// THEN: 2024 and 2025 renewals are appended, calendar aligned

	roller, mem := newRoller(t, date(2025, time.March, 10))
	seed(t, mem, "annual", generic.Renewal{ID: "annual-2023", RightID: "annual", Start: date(2023, time.January, 1), Finish: date(2023, time.December, 31)})

	result, err := roller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Created, 2)

	last := result.Created[1]
	assert.Equal(t, generic.RenewalID("annual-2025-01-01"), last.ID)
	assert.True(t, last.Finish.Equal(date(2025, time.December, 31)))

	renewals, err := mem.ListRenewals(context.Background(), "annual")
	require.NoError(t, err)
	assert.Len(t, renewals, 3)
}

func TestRunOnce_CurrentRenewal_NothingCreated(t *testing.T) {
	roller, mem := newRoller(t, date(2025, time.March, 10))
	seed(t, mem, "annual", generic.Renewal{ID: "annual-2025", RightID: "annual", Start: date(2025, time.January, 1), Finish: date(2025, time.December, 31)})

	result, err := roller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RightsChecked)
	assert.Empty(t, result.Created)
}

func TestRunOnce_FinishedToday_NotRolled(t *testing.T) {
	roller, mem := newRoller(t, date(2025, time.January, 31))
	seed(t, mem, "monthly", generic.Renewal{ID: "m-jan", RightID: "monthly", Start: date(2025, time.January, 1), Finish: date(2025, time.January, 31)})

	result, err := roller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Created, "the renewal still covers today")
}

func TestRunOnce_MonthlyAndRightWithoutRenewals(t *testing.T) {
	roller, mem := newRoller(t, date(2025, time.March, 10))
	seed(t, mem, "monthly", generic.Renewal{ID: "m-jan", RightID: "monthly", Start: date(2025, time.January, 1), Finish: date(2025, time.January, 31)})
	seed(t, mem, "empty")

	result, err := roller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.RightsChecked)
	require.Len(t, result.Created, 2)
	assert.True(t, result.Created[0].Finish.Equal(date(2025, time.February, 28)))
	assert.True(t, result.Created[1].Finish.Equal(date(2025, time.March, 31)))
}

func TestRunOnce_Idempotent(t *testing.T) {
	roller, mem := newRoller(t, date(2025, time.March, 10))
	seed(t, mem, "annual", generic.Renewal{ID: "annual-2024", RightID: "annual", Start: date(2024, time.January, 1), Finish: date(2024, time.December, 31)})

	_, err := roller.RunOnce(context.Background())
	require.NoError(t, err)
	result, err := roller.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Created)
}

func TestStart_InvalidSchedule(t *testing.T) {
	roller, _ := newRoller(t, date(2025, time.March, 10))
	assert.Error(t, roller.Start("whenever"))
}

func TestStartStop(t *testing.T) {
	roller, _ := newRoller(t, date(2025, time.March, 10))
	require.NoError(t, roller.Start("@every 1h"))
	assert.Error(t, roller.Start("@every 1h"), "second start is rejected")
	roller.Stop()
	roller.Stop()
}
