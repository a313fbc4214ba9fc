/*
store.go - Persistence and collaborator interfaces for the ledger engines

PURPOSE:
  Defines the seams between the engines and the outside world: the account
  record store, the receipt verification authority, and the content catalog.
  Implementations live in store/sqlite (production), ledger/store (memory),
  appstore (Apple client), and content (library).

STORAGE CONTRACT:
  Every operation is parameterized by AccountKind rather than duplicated per
  kind. Upsert is keyed on id so two concurrent first-touches of the same
  guest id converge on one row instead of racing an insert into a conflict.

CONCURRENCY:
  There is deliberately no compare-and-swap in this contract. Two concurrent
  credit or unlock calls on the same account can interleave between read and
  write and lose an update; the idempotency gates guard duplicate requests,
  not concurrent ones. See DESIGN.md before adding retries around this.

SEE ALSO:
  - store/sqlite/sqlite.go: Production implementation
  - ledger/store/memory.go: In-memory implementation for tests
*/
package ledger

import (
	"context"
	"encoding/json"
)

// =============================================================================
// ACCOUNT STORE
// =============================================================================

// AccountUpdate is a partial account mutation. Nil fields are left untouched.
// Balance and history fields changed by one operation are always carried in
// a single update so the row never holds a half-applied mutation.
type AccountUpdate struct {
	Credits             *int64
	UnlockedContentKeys []string
	Bookmarks           []string
	Settings            json.RawMessage
}

// AccountStore persists account rows, parameterized by kind.
type AccountStore interface {
	// GetByID returns the account stored under (kind, id), or
	// ErrAccountNotFound when absent.
	GetByID(ctx context.Context, kind AccountKind, id string) (*Account, error)

	// Upsert writes the account keyed by id, creating it if absent. Safe to
	// race: concurrent upserts of the same id settle on a single row.
	Upsert(ctx context.Context, kind AccountKind, acct Account) (*Account, error)

	// UpdateByID applies a partial update to the row under (kind, id).
	// Returns ErrAccountNotFound when the row is absent.
	UpdateByID(ctx context.Context, kind AccountKind, id string, update AccountUpdate) error
}

// =============================================================================
// EXTERNAL COLLABORATORS
// =============================================================================

// ReceiptVerifier wraps the external receipt verification authority.
// Implementations fail with ErrVerificationUnreachable on transport trouble
// and ErrVerificationRejected on a non-valid status; a returned receipt
// always has Status 0.
type ReceiptVerifier interface {
	Verify(ctx context.Context, receipt string) (*VerifiedReceipt, error)
}

// ContentCatalog answers whether a content unit exists and what it costs.
type ContentCatalog interface {
	// UnitCost returns the credit cost of (contentID, unitNumber). ok is
	// false when the unit does not exist in the catalog.
	UnitCost(ctx context.Context, contentID string, unitNumber int) (cost int64, ok bool, err error)
}
