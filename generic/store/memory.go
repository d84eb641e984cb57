// Package store provides in-memory Backend implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/renewal-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	entries     map[key][]generic.Entry
	idempotency map[string]bool

	rights   map[generic.RightID]generic.Right
	renewals map[generic.RenewalID]generic.Renewal
	accounts map[accountKey]generic.Account
	users    map[generic.UserID]generic.User
}

type key struct {
	UserID    generic.UserID
	RightID   generic.RightID
	RenewalID generic.RenewalID
}

type accountKey struct {
	UserID  generic.UserID
	RightID generic.RightID
}

var _ generic.Backend = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[key][]generic.Entry),
		idempotency: make(map[string]bool),
		rights:      make(map[generic.RightID]generic.Right),
		renewals:    make(map[generic.RenewalID]generic.Renewal),
		accounts:    make(map[accountKey]generic.Account),
		users:       make(map[generic.UserID]generic.User),
	}
}

// Append adds a single entry. Append-only.
func (m *Memory) Append(_ context.Context, e generic.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	m.appendLocked(e)
	return nil
}

// AppendBatch adds multiple entries atomically.
func (m *Memory) AppendBatch(_ context.Context, entries []generic.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range entries {
		if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
	}
	for _, e := range entries {
		m.appendLocked(e)
	}
	return nil
}

func (m *Memory) appendLocked(e generic.Entry) {
	k := key{UserID: e.UserID, RightID: e.RightID, RenewalID: e.RenewalID}
	entries := m.entries[k]

	// Keep entries ordered by EffectiveAt, stable for equal dates.
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].EffectiveAt.After(e.EffectiveAt)
	})
	entries = append(entries, generic.Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.entries[k] = entries

	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
}

func (m *Memory) Load(_ context.Context, userID generic.UserID, rightID generic.RightID, renewalID generic.RenewalID) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key{UserID: userID, RightID: rightID, RenewalID: renewalID}
	result := make([]generic.Entry, len(m.entries[k]))
	copy(result, m.entries[k])
	return result, nil
}

func (m *Memory) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveRight(_ context.Context, r generic.Right) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rights[r.ID] = r
	return nil
}

func (m *Memory) GetRight(_ context.Context, id generic.RightID) (generic.Right, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rights[id]
	if !ok {
		return generic.Right{}, generic.ErrRightNotFound
	}
	return r, nil
}

func (m *Memory) ListRights(_ context.Context) ([]generic.Right, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.Right, 0, len(m.rights))
	for _, r := range m.rights {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SaveRenewal(_ context.Context, r generic.Renewal) error {
	if err := r.Period().Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rights[r.RightID]; !ok {
		return generic.ErrRightNotFound
	}
	m.renewals[r.ID] = r
	return nil
}

func (m *Memory) GetRenewal(_ context.Context, id generic.RenewalID) (generic.Renewal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.renewals[id]
	if !ok {
		return generic.Renewal{}, generic.ErrRenewalNotFound
	}
	return r, nil
}

func (m *Memory) ListRenewals(_ context.Context, rightID generic.RightID) ([]generic.Renewal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []generic.Renewal
	for _, r := range m.renewals {
		if r.RightID == rightID {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Start.Equal(result[j].Start) {
			return result[i].ID < result[j].ID
		}
		return result[i].Start.Before(result[j].Start)
	})
	return result, nil
}

func (m *Memory) SaveAccount(_ context.Context, a generic.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[accountKey{UserID: a.UserID, RightID: a.RightID}] = a
	return nil
}

func (m *Memory) GetAccount(_ context.Context, userID generic.UserID, rightID generic.RightID) (generic.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountKey{UserID: userID, RightID: rightID}]
	if !ok {
		return generic.Account{}, generic.ErrAccountNotFound
	}
	return a, nil
}

func (m *Memory) ListAccounts(_ context.Context, userID generic.UserID) ([]generic.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []generic.Account
	for k, a := range m.accounts {
		if k.UserID == userID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RightID < result[j].RightID })
	return result, nil
}

func (m *Memory) SaveUser(_ context.Context, u generic.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id generic.UserID) (generic.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return generic.User{}, generic.ErrUserNotFound
	}
	return u, nil
}

// Reset drops every record.
func (m *Memory) Reset(_ context.Context) error {
	fresh := NewMemory()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = fresh.entries
	m.idempotency = fresh.idempotency
	m.rights = fresh.rights
	m.renewals = fresh.renewals
	m.accounts = fresh.accounts
	m.users = fresh.users
	return nil
}
