package beneficiary

import "github.com/warp/renewal-engine/generic"

// ShouldFetch reports whether the stats of a renewal are worth requesting
// for an account. A user who arrived strictly after the renewal finished was
// never part of it. An unknown arrival date is always eligible.
func ShouldFetch(account generic.Account, renewal generic.Renewal) bool {
	if account.Arrival.IsZero() {
		return true
	}
	return !account.Arrival.After(renewal.Finish)
}
