/*
roller.go - Automated renewal roller

PURPOSE:
  Rights renew on a fixed cadence (yearly, monthly...). Once the latest
  renewal of a right has finished, the roller appends the next one with
  the same length so that beneficiary snapshots always have a renewal
  covering today.

DESIGN:
  - Runs on a cron schedule (default: 00:05 every day)
  - For every right, looks at the renewal with the latest finish date
  - Appends Period.NextPeriod() renewals until one covers today
  - Rights without any renewal are left alone: the first renewal defines
    the cadence and is created through the API
  - Renewal IDs are "<right>-<start date>", so a rerun is idempotent

USAGE:
  roller := scheduler.NewRenewalRoller(store, generic.RealClock{}, logger)
  roller.Start("5 0 * * *")
  // ... later
  roller.Stop()

SEE ALSO:
  - generic/period.go: NextPeriod
  - cmd/renewald: "roll" command runs RunOnce
*/
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/warp/renewal-engine/generic"
	"github.com/warp/renewal-engine/metrics"
)

// maxRollsPerRight bounds catch-up after a long outage (about 80 years of
// yearly renewals, under 7 years of monthly ones).
const maxRollsPerRight = 1000

// RenewalCatalog is the part of the catalog the roller needs.
type RenewalCatalog interface {
	generic.RightStore
	generic.RenewalStore
}

// RollResult summarizes one roller run.
type RollResult struct {
	RightsChecked int
	Created       []generic.Renewal
	Errors        []error
}

// RenewalRoller appends renewals for rights whose latest renewal finished.
type RenewalRoller struct {
	Catalog RenewalCatalog
	Clock   generic.Clock
	Logger  zerolog.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	running sync.Mutex
}

func NewRenewalRoller(catalog RenewalCatalog, clock generic.Clock, logger zerolog.Logger) *RenewalRoller {
	if clock == nil {
		clock = generic.RealClock{}
	}
	return &RenewalRoller{
		Catalog: catalog,
		Clock:   clock,
		Logger:  logger.With().Str("component", "roller").Logger(),
	}
}

// Start schedules RunOnce with a standard 5-field cron expression.
func (r *RenewalRoller) Start(schedule string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return fmt.Errorf("roller already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, r.tick); err != nil {
		return fmt.Errorf("invalid roller schedule %q: %w", schedule, err)
	}
	c.Start()
	r.cron = c

	r.Logger.Info().Str("schedule", schedule).Msg("renewal roller started")
	return nil
}

// Stop stops the schedule and waits for a running roll to finish.
func (r *RenewalRoller) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron == nil {
		return
	}
	<-r.cron.Stop().Done()
	r.cron = nil
	r.Logger.Info().Msg("renewal roller stopped")
}

func (r *RenewalRoller) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := r.RunOnce(ctx); err != nil {
		r.Logger.Error().Err(err).Msg("renewal roll failed")
	}
}

// RunOnce rolls every right up to today. A failure on one right does not
// stop the others; per-right failures are listed in the result.
func (r *RenewalRoller) RunOnce(ctx context.Context) (RollResult, error) {
	r.running.Lock()
	defer r.running.Unlock()

	today := generic.FromTime(r.Clock.Now())

	rights, err := r.Catalog.ListRights(ctx)
	if err != nil {
		return RollResult{}, fmt.Errorf("list rights: %w", err)
	}

	var result RollResult
	for _, right := range rights {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.RightsChecked++

		created, err := r.rollRight(ctx, right, today)
		result.Created = append(result.Created, created...)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("right %s: %w", right.ID, err))
			r.Logger.Warn().Err(err).Str("right", string(right.ID)).Msg("renewal roll failed for right")
		}
	}

	r.Logger.Info().
		Int("rights", result.RightsChecked).
		Int("created", len(result.Created)).
		Int("errors", len(result.Errors)).
		Str("today", today.String()).
		Msg("renewal roll completed")

	return result, nil
}

func (r *RenewalRoller) rollRight(ctx context.Context, right generic.Right, today generic.TimePoint) ([]generic.Renewal, error) {
	renewals, err := r.Catalog.ListRenewals(ctx, right.ID)
	if err != nil {
		return nil, err
	}
	if len(renewals) == 0 {
		return nil, nil
	}

	latest := renewals[0]
	for _, rn := range renewals[1:] {
		if rn.Finish.After(latest.Finish) {
			latest = rn
		}
	}

	var created []generic.Renewal
	for i := 0; latest.Finish.Before(today); i++ {
		if i == maxRollsPerRight {
			return created, fmt.Errorf("gave up after %d renewals", maxRollsPerRight)
		}
		next := latest.Period().NextPeriod()
		renewal := generic.Renewal{
			ID:      RenewalID(right.ID, next.Start),
			RightID: right.ID,
			Start:   next.Start,
			Finish:  next.End,
		}
		if err := r.Catalog.SaveRenewal(ctx, renewal); err != nil {
			return created, err
		}
		metrics.RenewalsCreated.Inc()
		created = append(created, renewal)
		latest = renewal
	}
	return created, nil
}

// RenewalID is the ID given to rolled renewals.
func RenewalID(right generic.RightID, start generic.TimePoint) generic.RenewalID {
	return generic.RenewalID(fmt.Sprintf("%s-%s", right, start))
}
