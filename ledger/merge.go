/*
merge.go - Guest-into-user account merge engine

PURPOSE:
  One-way merge of an anonymous guest's ledger state into a registered
  user's account: balances sum, every history set unions. Only the target
  row is written; the source guest is left untouched for the caller to
  clean up later.

SAFETY:
  Merge never creates accounts - both rows must already exist. The set
  state is union-idempotent, so re-merging the same source cannot corrupt
  history; the balance sum, by contrast, is per-call, which is why callers
  retire the source id after a successful merge.

SEE ALSO:
  - resolver.go: Lookup (the non-creating resolution path)
  - settings.go: Owned-set union via the codec
*/
package ledger

import (
	"context"
	"fmt"
)

// MergeEngine folds one account's ledger state into another's.
type MergeEngine struct {
	resolver *Resolver
	store    AccountStore
}

func NewMergeEngine(store AccountStore) *MergeEngine {
	return &MergeEngine{
		resolver: NewResolver(store),
		store:    store,
	}
}

// Merge unions the source account's ledger state into the target and sums
// their balances. Both accounts must exist; the source row is not modified.
func (e *MergeEngine) Merge(ctx context.Context, targetID, sourceID string) (MergeResult, error) {
	if targetID == "" || sourceID == "" {
		return MergeResult{}, fmt.Errorf("%w: target and source account ids are required", ErrInvalidRequest)
	}
	if targetID == sourceID {
		return MergeResult{}, fmt.Errorf("%w: cannot merge an account into itself", ErrInvalidRequest)
	}

	targetRef, target, err := e.resolver.Lookup(ctx, targetID)
	if err != nil {
		return MergeResult{}, err
	}
	_, source, err := e.resolver.Lookup(ctx, sourceID)
	if err != nil {
		return MergeResult{}, err
	}

	targetSettings := DecodeSettings(target.Settings)
	sourceSettings := DecodeSettings(source.Settings)
	merged := Settings{
		PurchasedOneTimeProducts: targetSettings.PurchasedOneTimeProducts.Union(sourceSettings.PurchasedOneTimeProducts),
		ProcessedTransactionIDs:  targetSettings.ProcessedTransactionIDs.Union(sourceSettings.ProcessedTransactionIDs),
	}
	blob, err := EncodeSettings(merged, target.Settings)
	if err != nil {
		return MergeResult{}, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	newBalance := target.Credits + source.Credits
	update := AccountUpdate{
		Credits:             &newBalance,
		UnlockedContentKeys: unionOrdered(target.UnlockedContentKeys, source.UnlockedContentKeys),
		Bookmarks:           unionOrdered(target.Bookmarks, source.Bookmarks),
		Settings:            blob,
	}
	if err := e.store.UpdateByID(ctx, targetRef.Kind, targetRef.ID, update); err != nil {
		return MergeResult{}, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	return MergeResult{CreditsAdded: source.Credits, NewBalance: newBalance}, nil
}
