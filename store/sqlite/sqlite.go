/*
Package sqlite provides a SQLite-backed implementation of the account store.

PURPOSE:
  Implements ledger.AccountStore using SQLite. In production the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

SCHEMA:
  One accounts table for both kinds. The id is the primary key, the kind is
  a column: the "an id exists in at most one kind" invariant falls out of
  the primary key instead of needing cross-table checks. Set-valued fields
  (unlocked keys, bookmarks) are stored as JSON arrays; the settings blob is
  stored verbatim so keys owned by other subsystems survive round-trips.

UPSERT SEMANTICS:
  Upsert uses INSERT ... ON CONFLICT(id) DO NOTHING followed by a re-read.
  Two concurrent first-touches of the same guest id therefore settle on a
  single row; neither caller sees a conflict error.

CONCURRENCY:
  A sync.RWMutex serializes access, matching SQLite's single-writer model.
  Note this does NOT close the engine-level read-then-write window: two
  credit calls for the same account can still interleave between their read
  and their update. The idempotency gates catch duplicate requests, not
  concurrent distinct ones. See DESIGN.md.

WAL MODE:
  Opened with WAL for better read concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./fable.db")   // or ":memory:" for tests
  if err != nil { log.Fatal(err) }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/fable/credit-engine/ledger"
)

// Store implements ledger.AccountStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('user', 'guest')),
		email TEXT NOT NULL DEFAULT '',
		credits INTEGER NOT NULL DEFAULT 0 CHECK (credits >= 0),
		unlocked_keys_json TEXT NOT NULL DEFAULT '[]',
		bookmarks_json TEXT NOT NULL DEFAULT '[]',
		settings_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_kind ON accounts(kind);
	CREATE INDEX IF NOT EXISTS idx_accounts_email
		ON accounts(email) WHERE email != '';
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACCOUNT STORE IMPLEMENTATION
// =============================================================================

func (s *Store) GetByID(ctx context.Context, kind ledger.AccountKind, id string) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, credits, unlocked_keys_json, bookmarks_json, settings_json, created_at
		FROM accounts WHERE id = ? AND kind = ?`, id, string(kind))

	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ledger.ErrAccountNotFound, kind, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", id, err)
	}
	return acct, nil
}

// Upsert inserts the account if its id is new and otherwise returns the
// existing row unchanged. Safe under concurrent first-touches of one id.
func (s *Store) Upsert(ctx context.Context, kind ledger.AccountKind, acct ledger.Account) (*ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlocked, err := json.Marshal(emptyIfNil(acct.UnlockedContentKeys))
	if err != nil {
		return nil, fmt.Errorf("marshal unlocked keys: %w", err)
	}
	bookmarks, err := json.Marshal(emptyIfNil(acct.Bookmarks))
	if err != nil {
		return nil, fmt.Errorf("marshal bookmarks: %w", err)
	}

	createdAt := acct.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, kind, email, credits, unlocked_keys_json, bookmarks_json, settings_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		acct.ID, string(kind), acct.Email, acct.Credits,
		string(unlocked), string(bookmarks), nullableBlob(acct.Settings),
		createdAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("upsert account %s: %w", acct.ID, err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, email, credits, unlocked_keys_json, bookmarks_json, settings_json, created_at
		FROM accounts WHERE id = ? AND kind = ?`, acct.ID, string(kind))
	out, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		// The id already exists under the other kind; the conflict clause
		// swallowed the insert without creating our row.
		return nil, fmt.Errorf("account %s already exists under a different kind", acct.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("re-read account %s: %w", acct.ID, err)
	}
	return out, nil
}

func (s *Store) UpdateByID(ctx context.Context, kind ledger.AccountKind, id string, update ledger.AccountUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if update.Credits != nil {
		sets = append(sets, "credits = ?")
		args = append(args, *update.Credits)
	}
	if update.UnlockedContentKeys != nil {
		blob, err := json.Marshal(update.UnlockedContentKeys)
		if err != nil {
			return fmt.Errorf("marshal unlocked keys: %w", err)
		}
		sets = append(sets, "unlocked_keys_json = ?")
		args = append(args, string(blob))
	}
	if update.Bookmarks != nil {
		blob, err := json.Marshal(update.Bookmarks)
		if err != nil {
			return fmt.Errorf("marshal bookmarks: %w", err)
		}
		sets = append(sets, "bookmarks_json = ?")
		args = append(args, string(blob))
	}
	if update.Settings != nil {
		sets = append(sets, "settings_json = ?")
		args = append(args, string(update.Settings))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id, string(kind))
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET "+strings.Join(sets, ", ")+" WHERE id = ? AND kind = ?", args...)
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", ledger.ErrAccountNotFound, kind, id)
	}
	return nil
}

// ListByKind returns all accounts of one kind ordered by creation time.
// Used by the admin listing endpoint, not by the engines.
func (s *Store) ListByKind(ctx context.Context, kind ledger.AccountKind) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, credits, unlocked_keys_json, bookmarks_json, settings_json, created_at
		FROM accounts WHERE kind = ? ORDER BY created_at`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list %s accounts: %w", kind, err)
	}
	defer rows.Close()

	var out []ledger.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("list %s accounts: %w", kind, err)
		}
		out = append(out, *acct)
	}
	return out, rows.Err()
}

// =============================================================================
// ROW SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*ledger.Account, error) {
	var (
		acct      ledger.Account
		unlocked  string
		bookmarks string
		settings  sql.NullString
		createdAt string
	)
	if err := row.Scan(&acct.ID, &acct.Email, &acct.Credits, &unlocked, &bookmarks, &settings, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(unlocked), &acct.UnlockedContentKeys); err != nil {
		return nil, fmt.Errorf("decode unlocked keys: %w", err)
	}
	if err := json.Unmarshal([]byte(bookmarks), &acct.Bookmarks); err != nil {
		return nil, fmt.Errorf("decode bookmarks: %w", err)
	}
	if settings.Valid {
		acct.Settings = json.RawMessage(settings.String)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		// Tolerated like a malformed settings blob: the row stays readable,
		// the timestamp zeroes out, and the corruption is on record.
		log.Printf("sqlite: account %s: unreadable created_at %q: %v", acct.ID, createdAt, err)
	} else {
		acct.CreatedAt = ts
	}
	return &acct, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableBlob(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
