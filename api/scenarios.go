/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Populates the database with realistic data for demos. Each scenario
	creates users, rights, renewals, accounts and ledger entries that
	exercise one aspect of the beneficiary computation.

AVAILABLE SCENARIOS:
	full-year:        One user, annual leave over last and current year
	mid-year-arrival: User arriving in July, prorated current renewal
	hourly-rtt:       Monthly renewals of an hour-based right
	multi-right:      One user enrolled on two rights

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create rights and their renewals
 3. Create users and accounts
 4. Append ledger entries

Dates are relative to the handler clock so the current year is always
the open renewal.

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "mid-year-arrival"}

NOTE:
	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/renewal-engine/generic"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "full-year",
		Name:        "Full Year",
		Description: "Annual leave over two yearly renewals with taken and pending days",
	},
	{
		ID:          "mid-year-arrival",
		Name:        "Mid-Year Arrival",
		Description: "User arriving on July 2nd, current renewal prorated by presence",
	},
	{
		ID:          "hourly-rtt",
		Name:        "Hourly RTT",
		Description: "Hour-based right renewed every month",
	},
	{
		ID:          "multi-right",
		Name:        "Multiple Rights",
		Description: "Annual leave and RTT for the same user",
	},
}

var errUnknownScenario = errors.New("unknown scenario")

type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, errUnknownScenario) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) loadScenario(ctx context.Context, id string) error {
	var load func(*seeder)
	switch id {
	case "full-year":
		load = loadFullYear
	case "mid-year-arrival":
		load = loadMidYearArrival
	case "hourly-rtt":
		load = loadHourlyRTT
	case "multi-right":
		load = loadMultiRight
	default:
		return fmt.Errorf("%w: %q", errUnknownScenario, id)
	}

	rs, ok := h.Store.(resetter)
	if !ok {
		return errors.New("store does not support reset")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := rs.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	s := &seeder{ctx: ctx, h: h, year: h.Clock.Now().Year()}
	load(s)
	if s.err != nil {
		return s.err
	}

	h.currentScenario = id
	h.Logger.Info().Str("scenario", id).Msg("scenario loaded")
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadFullYear(s *seeder) {
	s.user("alice", "Alice Martin")
	s.right("annual", "Annual leave", 25, generic.UnitDays)
	last := s.yearlyRenewal("annual", s.year-1)
	current := s.yearlyRenewal("annual", s.year)
	s.account("alice", "annual", generic.TimePoint{})

	s.entry("alice", last, s.day(-1, time.August, 4), 10, generic.EntryConsumption)
	s.entry("alice", last, s.day(-1, time.December, 22), 5, generic.EntryConsumption)
	s.entry("alice", current, s.day(0, time.February, 17), 3, generic.EntryConsumption)
	s.entry("alice", current, s.day(0, time.May, 5), 1, generic.EntryReversal)
	s.entry("alice", current, s.day(0, time.August, 11), 2, generic.EntryWaitingCreated)
}

func loadMidYearArrival(s *seeder) {
	s.user("bob", "Bob Leroy")
	s.right("annual", "Annual leave", 25, generic.UnitDays)
	s.yearlyRenewal("annual", s.year-1)
	current := s.yearlyRenewal("annual", s.year)
	s.account("bob", "annual", s.day(0, time.July, 2))

	s.entry("bob", current, s.day(0, time.October, 6), 2, generic.EntryConsumption)
	s.entry("bob", current, s.day(0, time.July, 2), 1, generic.EntryAdjustment)
}

func loadHourlyRTT(s *seeder) {
	s.user("carol", "Carol Dubois")
	s.right("rtt", "RTT", 7, generic.UnitHours)
	renewals := s.monthlyRenewals("rtt", s.year)
	s.account("carol", "rtt", generic.TimePoint{})

	s.entry("carol", renewals[0], s.day(0, time.January, 10), 3.5, generic.EntryConsumption)
	s.entry("carol", renewals[1], s.day(0, time.February, 14), 7, generic.EntryConsumption)
	s.entry("carol", renewals[2], s.day(0, time.March, 20), 2, generic.EntryWaitingCreated)
	s.entry("carol", renewals[2], s.day(0, time.March, 21), 1, generic.EntryWaitingDeleted)
}

func loadMultiRight(s *seeder) {
	s.user("dave", "Dave Bernard")
	s.right("annual", "Annual leave", 25, generic.UnitDays)
	s.right("rtt", "RTT", 7, generic.UnitHours)
	annual := s.yearlyRenewal("annual", s.year)
	rtt := s.monthlyRenewals("rtt", s.year)
	s.account("dave", "annual", generic.TimePoint{})
	s.account("dave", "rtt", generic.TimePoint{})

	s.entry("dave", annual, s.day(0, time.April, 14), 5, generic.EntryConsumption)
	s.entry("dave", rtt[3], s.day(0, time.April, 18), 7, generic.EntryConsumption)
}

// =============================================================================
// SEEDER - Sequential writes stopping at the first error
// =============================================================================

type seeder struct {
	ctx  context.Context
	h    *Handler
	year int
	seq  int
	err  error
}

func (s *seeder) day(yearOffset int, month time.Month, day int) generic.TimePoint {
	return generic.NewTimePoint(s.year+yearOffset, month, day)
}

func (s *seeder) user(id, name string) {
	if s.err != nil {
		return
	}
	s.err = s.h.Store.SaveUser(s.ctx, generic.User{ID: generic.UserID(id), Name: name})
}

func (s *seeder) right(id, name string, qty float64, unit generic.Unit) {
	if s.err != nil {
		return
	}
	s.err = s.h.Store.SaveRight(s.ctx, generic.Right{
		ID:       generic.RightID(id),
		Name:     name,
		Quantity: decimal.NewFromFloat(qty),
		Unit:     unit,
	})
}

func (s *seeder) renewal(right string, start, finish generic.TimePoint) generic.Renewal {
	rn := generic.Renewal{
		ID:      generic.RenewalID(fmt.Sprintf("%s-%s", right, start)),
		RightID: generic.RightID(right),
		Start:   start,
		Finish:  finish,
	}
	if s.err == nil {
		s.err = s.h.Store.SaveRenewal(s.ctx, rn)
	}
	return rn
}

func (s *seeder) yearlyRenewal(right string, year int) generic.Renewal {
	return s.renewal(right, generic.StartOfYear(year), generic.EndOfYear(year))
}

func (s *seeder) monthlyRenewals(right string, year int) []generic.Renewal {
	out := make([]generic.Renewal, 0, 12)
	for m := time.January; m <= time.December; m++ {
		start := generic.NewTimePoint(year, m, 1)
		out = append(out, s.renewal(right, start, start.AddMonths(1).AddDays(-1)))
	}
	return out
}

func (s *seeder) account(user, right string, arrival generic.TimePoint) {
	if s.err != nil {
		return
	}
	s.err = s.h.Store.SaveAccount(s.ctx, generic.Account{
		ID:      generic.AccountID(user + "-" + right),
		UserID:  generic.UserID(user),
		RightID: generic.RightID(right),
		Arrival: arrival,
	})
}

func (s *seeder) entry(user string, renewal generic.Renewal, at generic.TimePoint, qty float64, typ generic.EntryType) {
	if s.err != nil {
		return
	}
	s.seq++
	id := fmt.Sprintf("scenario-%s-%03d", user, s.seq)
	s.err = s.h.Ledger.Append(s.ctx, generic.Entry{
		ID:             generic.EntryID(id),
		UserID:         generic.UserID(user),
		RightID:        renewal.RightID,
		RenewalID:      renewal.ID,
		EffectiveAt:    at,
		Quantity:       decimal.NewFromFloat(qty),
		Type:           typ,
		IdempotencyKey: id,
		CreatedBy:      "scenario",
		CreatedAt:      generic.FromTime(s.h.Clock.Now()),
	})
}
