package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORDS - Persisted shapes of rights, renewals, accounts and users
// =============================================================================

// Right is the definition of a consumable entitlement.
type Right struct {
	ID       RightID
	Name     string
	Quantity decimal.Decimal // nominal quantity granted per renewal
	Unit     Unit
}

// Renewal is one time-bounded slice of a right.
type Renewal struct {
	ID      RenewalID
	RightID RightID
	Start   TimePoint
	Finish  TimePoint
}

func (r Renewal) Period() Period {
	return Period{Start: r.Start, End: r.Finish}
}

// Account enrolls a user on a right. A zero Arrival means the arrival date is
// unknown and the user is treated as present for every renewal.
type Account struct {
	ID      AccountID
	UserID  UserID
	RightID RightID
	Arrival TimePoint
}

type User struct {
	ID    UserID
	Name  string
	Email string
}
