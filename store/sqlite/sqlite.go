/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.Backend (ledger Store plus Catalog) using SQLite. The
  same schema maps onto PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  generic.Store:        Ledger entry persistence
  generic.RightStore:   Right definitions
  generic.RenewalStore: Renewals of a right
  generic.AccountStore: User enrollment with arrival date
  generic.UserStore:    Users

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the entries table
  - No DELETE statements on the entries table (except Reset)
  - Corrections via reversal entries only

KEY TABLES:
  entries:  Immutable ledger, one row per movement on a renewal
  rights:   Right definitions (nominal quantity and unit)
  renewals: Time slices of a right, [start, finish] inclusive
  accounts: (user, right) enrollment, arrival may be NULL
  users:    Users

INDEXES:
  - idx_entries_user_renewal: Renewal stats replay (hot path)
  - idx_renewals_right_start: Renewal listing per right

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection so that
  ":memory:" databases are shared by every query.

USAGE:
  store, err := sqlite.New("./data/renewals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/renewal-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ generic.Backend = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		right_id TEXT NOT NULL,
		renewal_id TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		quantity TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_user_renewal
		ON entries(user_id, right_id, renewal_id, effective_at);

	-- Rights
	CREATE TABLE IF NOT EXISTS rights (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Renewals
	CREATE TABLE IF NOT EXISTS renewals (
		id TEXT PRIMARY KEY,
		right_id TEXT NOT NULL REFERENCES rights(id),
		start TEXT NOT NULL,
		finish TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_renewals_right_start
		ON renewals(right_id, start);

	-- Accounts (user enrollment on a right)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		right_id TEXT NOT NULL,
		arrival TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(user_id, right_id)
	);

	-- Users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ENTRY STORE (generic.Store interface)
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, e generic.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendEntry(ctx, s.db, e)
}

func (s *Store) appendEntry(ctx context.Context, db execer, e generic.Entry) error {
	query := `
		INSERT INTO entries
		(id, user_id, right_id, renewal_id, effective_at, quantity, entry_type,
		 reference_id, reason, idempotency_key, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := e.CreatedAt.Time
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.UserID,
		e.RightID,
		e.RenewalID,
		e.EffectiveAt.String(),
		e.Quantity.String(),
		e.Type,
		nullString(e.ReferenceID),
		nullString(e.Reason),
		nullString(e.IdempotencyKey),
		nullString(e.CreatedBy),
		createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintError(err, sqlite3.ErrConstraintUnique) || isConstraintError(err, sqlite3.ErrConstraintPrimaryKey) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, entries []generic.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make(map[string]bool)
	for _, e := range entries {
		if e.IdempotencyKey != "" {
			if keys[e.IdempotencyKey] {
				return generic.ErrDuplicateIdempotencyKey
			}
			keys[e.IdempotencyKey] = true
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := s.appendEntry(ctx, tx, e); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Load returns the entries of a user on one renewal, oldest first.
func (s *Store) Load(ctx context.Context, userID generic.UserID, rightID generic.RightID, renewalID generic.RenewalID) ([]generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, user_id, right_id, renewal_id, effective_at, quantity, entry_type,
		       reference_id, reason, idempotency_key, created_by, created_at
		FROM entries
		WHERE user_id = ? AND right_id = ? AND renewal_id = ?
		ORDER BY effective_at ASC, created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, rightID, renewalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []generic.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func scanEntry(rows *sql.Rows) (generic.Entry, error) {
	var (
		e              generic.Entry
		effectiveAt    string
		quantity       string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&e.ID, &e.UserID, &e.RightID, &e.RenewalID,
		&effectiveAt, &quantity, &e.Type,
		&referenceID, &reason, &idempotencyKey, &createdBy, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.EffectiveAt, err = generic.ParseTimePoint(effectiveAt)
	if err != nil {
		return e, fmt.Errorf("entry %s: %w", e.ID, err)
	}
	e.Quantity = generic.MustParseDecimal(quantity)
	e.ReferenceID = referenceID.String
	e.Reason = reason.String
	e.IdempotencyKey = idempotencyKey.String
	e.CreatedBy = createdBy.String
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		e.CreatedAt = generic.TimePoint{Time: t}
	}
	return e, nil
}

// =============================================================================
// RIGHT STORE
// =============================================================================

// SaveRight creates or updates a right.
func (s *Store) SaveRight(ctx context.Context, r generic.Right) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO rights (id, name, quantity, unit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			quantity = excluded.quantity,
			unit = excluded.unit,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, query, r.ID, r.Name, r.Quantity.String(), r.Unit, now, now)
	return err
}

func (s *Store) GetRight(ctx context.Context, id generic.RightID) (generic.Right, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r generic.Right
	var quantity string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, quantity, unit FROM rights WHERE id = ?", id,
	).Scan(&r.ID, &r.Name, &quantity, &r.Unit)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Right{}, generic.ErrRightNotFound
	}
	if err != nil {
		return generic.Right{}, err
	}
	r.Quantity = generic.MustParseDecimal(quantity)
	return r, nil
}

func (s *Store) ListRights(ctx context.Context) ([]generic.Right, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, quantity, unit FROM rights ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rights []generic.Right
	for rows.Next() {
		var r generic.Right
		var quantity string
		if err := rows.Scan(&r.ID, &r.Name, &quantity, &r.Unit); err != nil {
			return nil, err
		}
		r.Quantity = generic.MustParseDecimal(quantity)
		rights = append(rights, r)
	}
	return rights, rows.Err()
}

// =============================================================================
// RENEWAL STORE
// =============================================================================

// SaveRenewal creates or updates a renewal. The right must exist.
func (s *Store) SaveRenewal(ctx context.Context, r generic.Renewal) error {
	if err := r.Period().Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO renewals (id, right_id, start, finish, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start = excluded.start,
			finish = excluded.finish
	`

	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.RightID, r.Start.String(), r.Finish.String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if isConstraintError(err, sqlite3.ErrConstraintForeignKey) {
		return generic.ErrRightNotFound
	}
	return err
}

func (s *Store) GetRenewal(ctx context.Context, id generic.RenewalID) (generic.Renewal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var r generic.Renewal
	var start, finish string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, right_id, start, finish FROM renewals WHERE id = ?", id,
	).Scan(&r.ID, &r.RightID, &start, &finish)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Renewal{}, generic.ErrRenewalNotFound
	}
	if err != nil {
		return generic.Renewal{}, err
	}
	return parseRenewal(r, start, finish)
}

// ListRenewals returns the renewals of a right ordered by start date.
func (s *Store) ListRenewals(ctx context.Context, rightID generic.RightID) ([]generic.Renewal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, right_id, start, finish FROM renewals WHERE right_id = ? ORDER BY start, id",
		rightID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renewals []generic.Renewal
	for rows.Next() {
		var r generic.Renewal
		var start, finish string
		if err := rows.Scan(&r.ID, &r.RightID, &start, &finish); err != nil {
			return nil, err
		}
		r, err = parseRenewal(r, start, finish)
		if err != nil {
			return nil, err
		}
		renewals = append(renewals, r)
	}
	return renewals, rows.Err()
}

func parseRenewal(r generic.Renewal, start, finish string) (generic.Renewal, error) {
	var err error
	if r.Start, err = generic.ParseTimePoint(start); err != nil {
		return r, fmt.Errorf("renewal %s start: %w", r.ID, err)
	}
	if r.Finish, err = generic.ParseTimePoint(finish); err != nil {
		return r, fmt.Errorf("renewal %s finish: %w", r.ID, err)
	}
	return r, nil
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

// SaveAccount enrolls a user on a right, replacing any previous enrollment.
func (s *Store) SaveAccount(ctx context.Context, a generic.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO accounts (id, user_id, right_id, arrival, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, right_id) DO UPDATE SET
			id = excluded.id,
			arrival = excluded.arrival
	`

	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.RightID, nullString(a.Arrival.String()),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetAccount(ctx context.Context, userID generic.UserID, rightID generic.RightID) (generic.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a generic.Account
	var arrival sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, right_id, arrival FROM accounts WHERE user_id = ? AND right_id = ?",
		userID, rightID,
	).Scan(&a.ID, &a.UserID, &a.RightID, &arrival)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Account{}, generic.ErrAccountNotFound
	}
	if err != nil {
		return generic.Account{}, err
	}
	return parseAccount(a, arrival)
}

// ListAccounts returns the enrollments of a user ordered by right.
func (s *Store) ListAccounts(ctx context.Context, userID generic.UserID) ([]generic.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, right_id, arrival FROM accounts WHERE user_id = ? ORDER BY right_id",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []generic.Account
	for rows.Next() {
		var a generic.Account
		var arrival sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.RightID, &arrival); err != nil {
			return nil, err
		}
		a, err = parseAccount(a, arrival)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func parseAccount(a generic.Account, arrival sql.NullString) (generic.Account, error) {
	if !arrival.Valid || arrival.String == "" {
		return a, nil
	}
	tp, err := generic.ParseTimePoint(arrival.String)
	if err != nil {
		return a, fmt.Errorf("account %s arrival: %w", a.ID, err)
	}
	a.Arrival = tp
	return a, nil
}

// =============================================================================
// USER STORE
// =============================================================================

// SaveUser creates or updates a user.
func (s *Store) SaveUser(ctx context.Context, u generic.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO users (id, name, email, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email
	`

	_, err := s.db.ExecContext(ctx, query,
		u.ID, u.Name, nullString(u.Email),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetUser(ctx context.Context, id generic.UserID) (generic.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var u generic.User
	var email sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, email FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Name, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.User{}, generic.ErrUserNotFound
	}
	if err != nil {
		return generic.User{}, err
	}
	u.Email = email.String
	return u, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"entries", "accounts", "renewals", "rights", "users"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isConstraintError(err error, code sqlite3.ErrNoExtended) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == code
}
