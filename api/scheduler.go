/*
scheduler.go - Manual trigger for the renewal roller

PURPOSE:
  The roller normally runs on its cron schedule (see scheduler/roller.go).
  This endpoint runs one pass on demand, e.g. right after a deploy or
  when a right was created with renewals that already finished.

USAGE:
  POST /api/admin/roll

  {
    "rights_checked": 3,
    "created": [{"id": "annual-2026-01-01", ...}],
    "errors": []
  }

SEE ALSO:
  - scheduler/roller.go: RenewalRoller
*/
package api

import (
	"net/http"
)

// RollRenewals appends the renewals every right is missing up to today.
func (h *Handler) RollRenewals(w http.ResponseWriter, r *http.Request) {
	if h.Roller == nil {
		writeError(w, http.StatusServiceUnavailable, "Renewal roller is not configured", nil)
		return
	}

	result, err := h.Roller.RunOnce(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to roll renewals", err)
		return
	}

	dto := RollResultDTO{
		RightsChecked: result.RightsChecked,
		Created:       make([]RenewalDTO, len(result.Created)),
		Errors:        make([]string, len(result.Errors)),
	}
	for i, rn := range result.Created {
		dto.Created[i] = toRenewalDTO(rn)
	}
	for i, e := range result.Errors {
		dto.Errors[i] = e.Error()
	}

	h.Logger.Info().
		Int("rights_checked", dto.RightsChecked).
		Int("created", len(dto.Created)).
		Int("errors", len(dto.Errors)).
		Msg("manual renewal roll")

	writeJSON(w, http.StatusOK, dto)
}
