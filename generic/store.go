/*
store.go - Persistence interfaces for the ledger and the catalog

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:        Ledger entry persistence (append, load, exists)
  RightStore:   Right definitions
  RenewalStore: Renewals of a right, ordered by start date
  AccountStore: User enrollment on rights (carries the arrival date)
  UserStore:    Users
  Catalog:      Everything a beneficiary computation reads

APPEND-ONLY CONTRACT:
  The ledger part is append-only:
  - Append(): Single entry write
  - AppendBatch(): Atomic multi-entry write
  - NO Update() or Delete() methods exist

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import "context"

// =============================================================================
// STORE - Ledger entry persistence (append-only)
// =============================================================================

// Store handles persistence of ledger entries.
// Store is APPEND-ONLY. Corrections are made via reversal entries.
type Store interface {
	// Append persists an entry. Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, e Entry) error

	// AppendBatch persists multiple entries atomically.
	AppendBatch(ctx context.Context, entries []Entry) error

	// Load returns the entries of a user on one renewal, ordered by EffectiveAt.
	Load(ctx context.Context, userID UserID, rightID RightID, renewalID RenewalID) ([]Entry, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// =============================================================================
// CATALOG - Rights, renewals, accounts, users
// =============================================================================

type RightStore interface {
	SaveRight(ctx context.Context, r Right) error
	GetRight(ctx context.Context, id RightID) (Right, error)
	ListRights(ctx context.Context) ([]Right, error)
}

type RenewalStore interface {
	SaveRenewal(ctx context.Context, r Renewal) error
	GetRenewal(ctx context.Context, id RenewalID) (Renewal, error)
	// ListRenewals returns the renewals of a right ordered by start date.
	ListRenewals(ctx context.Context, rightID RightID) ([]Renewal, error)
}

type AccountStore interface {
	SaveAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, userID UserID, rightID RightID) (Account, error)
	ListAccounts(ctx context.Context, userID UserID) ([]Account, error)
}

type UserStore interface {
	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id UserID) (User, error)
}

// Catalog groups every read a beneficiary computation needs.
type Catalog interface {
	RightStore
	RenewalStore
	AccountStore
	UserStore
}

// Backend is a full storage implementation: ledger plus catalog.
type Backend interface {
	Store
	Catalog
}
