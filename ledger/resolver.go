/*
resolver.go - Account lookup and lazy guest creation

PURPOSE:
  Every engine obtains its account row through the Resolver. Resolution
  order is fixed: the User kind is searched first, then Guest, and only
  when both miss is a fresh Guest row created. Creation goes through an
  upsert keyed by id, so two concurrent first-touches of the same guest id
  settle on one row.

FAILURE MODE:
  Any store error surfaces as ErrAccountUnavailable and the enclosing
  operation aborts before any ledger mutation.

SEE ALSO:
  - store.go: AccountStore contract
  - merge.go: Uses the non-creating Lookup variant
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Resolver finds or lazily creates account rows.
type Resolver struct {
	store AccountStore
}

func NewResolver(store AccountStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the account stored under id, searching User before Guest,
// creating a zeroed Guest row as last resort.
func (r *Resolver) Resolve(ctx context.Context, id string) (AccountRef, *Account, error) {
	if id == "" {
		return AccountRef{}, nil, fmt.Errorf("%w: account id is required", ErrInvalidRequest)
	}

	ref, acct, err := r.Lookup(ctx, id)
	if err == nil {
		return ref, acct, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return AccountRef{}, nil, err
	}

	// Last resort: mint a guest. Upsert, not insert, so a concurrent first
	// touch of the same id cannot fail on conflict.
	fresh := Account{
		ID:        id,
		Credits:   0,
		CreatedAt: time.Now().UTC(),
	}
	created, err := r.store.Upsert(ctx, KindGuest, fresh)
	if err != nil {
		return AccountRef{}, nil, fmt.Errorf("%w: create guest %s: %v", ErrAccountUnavailable, id, err)
	}
	return AccountRef{Kind: KindGuest, ID: id}, created, nil
}

// Lookup returns the account stored under id without creating anything.
// Returns ErrAccountNotFound when the id exists in neither kind.
func (r *Resolver) Lookup(ctx context.Context, id string) (AccountRef, *Account, error) {
	if id == "" {
		return AccountRef{}, nil, fmt.Errorf("%w: account id is required", ErrInvalidRequest)
	}

	for _, kind := range []AccountKind{KindUser, KindGuest} {
		acct, err := r.store.GetByID(ctx, kind, id)
		if err == nil {
			return AccountRef{Kind: kind, ID: id}, acct, nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return AccountRef{}, nil, fmt.Errorf("%w: lookup %s/%s: %v", ErrAccountUnavailable, kind, id, err)
		}
	}
	return AccountRef{}, nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}
