/*
unlock.go - Chapter unlock engine

PURPOSE:
  Deducts credits for access to a paid content unit exactly once. Units
  below the paid threshold are free and never touch the account store.
  Re-unlocking an already-unlocked unit is a successful no-op.

ORDERING:
  The already-unlocked check runs before the catalog existence check, so a
  previously unlocked unit stays readable even if it later disappears from
  the catalog.

SEE ALSO:
  - content/library.go: ContentCatalog implementation
  - errors.go: InsufficientCreditsError carries required/current
*/
package ledger

import (
	"context"
	"fmt"
)

// DefaultFirstPaidUnit is the first chapter number that costs credits.
// Chapters strictly below it are the free tier.
const DefaultFirstPaidUnit = 6

// UnlockEngine enforces the free tier and the unlocked-set idempotency gate,
// deducting balance for first-time paid unlocks.
type UnlockEngine struct {
	resolver      *Resolver
	store         AccountStore
	content       ContentCatalog
	firstPaidUnit int
}

// NewUnlockEngine builds an unlock engine. firstPaidUnit <= 0 selects
// DefaultFirstPaidUnit.
func NewUnlockEngine(store AccountStore, content ContentCatalog, firstPaidUnit int) *UnlockEngine {
	if firstPaidUnit <= 0 {
		firstPaidUnit = DefaultFirstPaidUnit
	}
	return &UnlockEngine{
		resolver:      NewResolver(store),
		store:         store,
		content:       content,
		firstPaidUnit: firstPaidUnit,
	}
}

// Unlock grants access to (contentID, unitNumber), deducting its cost at
// most once. Free-tier units return immediately with Free = true and no
// account access at all.
func (e *UnlockEngine) Unlock(ctx context.Context, accountID, contentID string, unitNumber int) (UnlockResult, error) {
	if accountID == "" || contentID == "" || unitNumber < 1 {
		return UnlockResult{}, fmt.Errorf(
			"%w: account id, content id and a positive unit number are required", ErrInvalidRequest)
	}

	if unitNumber < e.firstPaidUnit {
		return UnlockResult{CreditsDeducted: 0, Free: true}, nil
	}

	ref, acct, err := e.resolver.Resolve(ctx, accountID)
	if err != nil {
		return UnlockResult{}, err
	}

	key := ContentKey(contentID, unitNumber)
	for _, unlocked := range acct.UnlockedContentKeys {
		if unlocked == key {
			return UnlockResult{CreditsDeducted: 0, NewBalance: acct.Credits}, nil
		}
	}

	cost, ok, err := e.content.UnitCost(ctx, contentID, unitNumber)
	if err != nil {
		return UnlockResult{}, fmt.Errorf("content catalog: %w", err)
	}
	if !ok {
		return UnlockResult{}, fmt.Errorf("%w: %s", ErrContentNotFound, key)
	}

	if acct.Credits < cost {
		return UnlockResult{}, &InsufficientCreditsError{
			ContentKey: key,
			Required:   cost,
			Current:    acct.Credits,
		}
	}

	newBalance := acct.Credits - cost
	keys := make([]string, 0, len(acct.UnlockedContentKeys)+1)
	keys = append(keys, acct.UnlockedContentKeys...)
	keys = append(keys, key)

	update := AccountUpdate{
		Credits:             &newBalance,
		UnlockedContentKeys: keys,
	}
	if err := e.store.UpdateByID(ctx, ref.Kind, ref.ID, update); err != nil {
		return UnlockResult{}, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	return UnlockResult{CreditsDeducted: cost, NewBalance: newBalance}, nil
}
