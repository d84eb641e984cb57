package api

import (
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/renewal-engine/generic"
	"github.com/warp/renewal-engine/scheduler"
)

func loadScenario(t *testing.T, s *testServer, id string) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": id})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenarios_AllLoad(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ScenarioDTO](t, rec)
	require.NotEmpty(t, list)

	for _, sc := range list {
		t.Run(sc.ID, func(t *testing.T) {
			loadScenario(t, s, sc.ID)

			rec := s.do(t, http.MethodGet, "/api/scenarios/current", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, sc.ID, decode[ScenarioDTO](t, rec).ID)
		})
	}
}

func TestScenario_FullYear(t *testing.T) {
	// GIVEN: The full-year scenario loaded on 2025-06-01
	// WHEN: Reading alice's annual leave
	// THEN: Only the 2025 renewal counts: 3 taken, 1 given back, 2 pending

	s := newTestServer(t)
	loadScenario(t, s, "full-year")

	rec := s.do(t, http.MethodGet, "/api/users/alice/rights/annual/beneficiary", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	b := decode[BeneficiaryDTO](t, rec)
	require.Len(t, b.Renewals, 2)
	assert.False(t, b.Renewals[0].InTotal)
	assert.True(t, b.Renewals[1].InTotal)
	assert.Equal(t, 25.0, b.InitialQuantity)
	assert.Equal(t, 2.0, b.ConsumedQuantity)
	assert.Equal(t, 21.0, b.AvailableQuantity)
	assert.Equal(t, 2.0, b.WaitingQuantity.Created)
}

func TestScenario_ReloadReplacesData(t *testing.T) {
	s := newTestServer(t)
	loadScenario(t, s, "full-year")
	loadScenario(t, s, "hourly-rtt")

	rec := s.do(t, http.MethodGet, "/api/users/alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/rights/rtt/renewals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]RenewalDTO](t, rec), 12)
}

func TestScenario_Unknown(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/scenarios/load", map[string]string{"scenario_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// MANUAL ROLL
// =============================================================================

func TestRollRenewals_NotConfigured(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/admin/roll", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRollRenewals_AppendsCurrentYear(t *testing.T) {
	// GIVEN: A right whose only renewal finished in 2024
	// WHEN: Rolling on 2025-06-01
	// THEN: The 2025 renewal is created

	store := newTestServer(t).store
	clock := generic.FixedClock{At: generic.NewTimePoint(2025, 6, 1).Time}
	h := NewHandler(store, nil, clock, zerolog.Nop())
	h.Roller = scheduler.NewRenewalRoller(store, clock, zerolog.Nop())
	s := &testServer{store: store, router: NewRouter(h, nil)}

	rec := s.do(t, http.MethodPost, "/api/rights", CreateRightRequest{ID: "annual", Name: "Annual leave", Quantity: 25, Unit: "days"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/rights/annual/renewals", CreateRenewalRequest{ID: "annual-2024", Start: "2024-01-01", Finish: "2024-12-31"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/admin/roll", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[RollResultDTO](t, rec)
	assert.Equal(t, 1, result.RightsChecked)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "2025-01-01", result.Created[0].Start)
	assert.Equal(t, "2025-12-31", result.Created[0].Finish)
	assert.Empty(t, result.Errors)
}
