/*
ledger.go - Append-only entry log

PURPOSE:
  The Ledger is the immutable source of truth for what a user consumed or
  has waiting on a renewal. Renewal statistics are always computed by
  replaying entries, there is no stored balance that can drift.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IDEMPOTENT: Same idempotency key = same entry (no duplicates)
  3. POSITIVE QUANTITIES: The entry type carries the sign

CORRECTIONS:
  A wrong consumption is not edited. A reversal entry is appended and
  both lines stay in the ledger.

SEE ALSO:
  - store.go: Low-level persistence interface
  - rights/stats.go: Replays entries into QuantityStats
*/
package generic

import (
	"context"
	"fmt"
)

// Ledger is the source of truth for all quantity movements on renewals.
type Ledger interface {
	Append(ctx context.Context, e Entry) error
	AppendBatch(ctx context.Context, entries []Entry) error
	Entries(ctx context.Context, userID UserID, rightID RightID, renewalID RenewalID) ([]Entry, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if e.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, e)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return err
		}
		if e.IdempotencyKey == "" {
			continue
		}
		if seen[e.IdempotencyKey] {
			return ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.AppendBatch(ctx, entries)
}

func (l *DefaultLedger) Entries(ctx context.Context, userID UserID, rightID RightID, renewalID RenewalID) ([]Entry, error) {
	return l.Store.Load(ctx, userID, rightID, renewalID)
}

func validateEntry(e Entry) error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown entry type %q", ErrInvalidQuantity, e.Type)
	}
	if e.Quantity.IsNegative() {
		return fmt.Errorf("%w: negative quantity %s", ErrInvalidQuantity, e.Quantity)
	}
	return nil
}
