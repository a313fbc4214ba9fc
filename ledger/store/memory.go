// Package store provides AccountStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fable/credit-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps account rows in a map keyed by id. The one-id-one-kind
// invariant is enforced the same way the SQLite store does it: the id is
// the primary key, the kind is a column.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]memoryRow
}

type memoryRow struct {
	kind ledger.AccountKind
	acct ledger.Account
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]memoryRow)}
}

func (m *Memory) GetByID(_ context.Context, kind ledger.AccountKind, id string) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.accounts[id]
	if !ok || row.kind != kind {
		return nil, fmt.Errorf("%w: %s/%s", ledger.ErrAccountNotFound, kind, id)
	}
	acct := cloneAccount(row.acct)
	return &acct, nil
}

// Upsert writes the account keyed by id. A row that already exists wins:
// concurrent first-touches of the same guest id converge on the first write
// instead of clobbering each other.
func (m *Memory) Upsert(_ context.Context, kind ledger.AccountKind, acct ledger.Account) (*ledger.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.accounts[acct.ID]; ok {
		if existing.kind != kind {
			return nil, fmt.Errorf("account %s already exists as %s", acct.ID, existing.kind)
		}
		out := cloneAccount(existing.acct)
		return &out, nil
	}

	m.accounts[acct.ID] = memoryRow{kind: kind, acct: cloneAccount(acct)}
	out := cloneAccount(acct)
	return &out, nil
}

func (m *Memory) UpdateByID(_ context.Context, kind ledger.AccountKind, id string, update ledger.AccountUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.accounts[id]
	if !ok || row.kind != kind {
		return fmt.Errorf("%w: %s/%s", ledger.ErrAccountNotFound, kind, id)
	}

	if update.Credits != nil {
		row.acct.Credits = *update.Credits
	}
	if update.UnlockedContentKeys != nil {
		row.acct.UnlockedContentKeys = append([]string(nil), update.UnlockedContentKeys...)
	}
	if update.Bookmarks != nil {
		row.acct.Bookmarks = append([]string(nil), update.Bookmarks...)
	}
	if update.Settings != nil {
		row.acct.Settings = append([]byte(nil), update.Settings...)
	}
	m.accounts[id] = row
	return nil
}

// ListByKind returns all accounts of one kind ordered by creation time,
// matching the SQLite store's listing order.
func (m *Memory) ListByKind(_ context.Context, kind ledger.AccountKind) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Account
	for _, row := range m.accounts {
		if row.kind == kind {
			out = append(out, cloneAccount(row.acct))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneAccount(a ledger.Account) ledger.Account {
	out := a
	out.UnlockedContentKeys = append([]string(nil), a.UnlockedContentKeys...)
	out.Bookmarks = append([]string(nil), a.Bookmarks...)
	out.Settings = append([]byte(nil), a.Settings...)
	return out
}
