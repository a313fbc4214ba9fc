package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fable/credit-engine/ledger"
	"github.com/fable/credit-engine/ledger/store"
	"github.com/fable/credit-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// RESOLUTION ORDER
// =============================================================================

func TestResolver_UserFoundFirst(t *testing.T) {
	// GIVEN: An id registered as a user
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, ledger.KindUser, ledger.Account{ID: "acc-1", Email: "a@example.com", Credits: 100})
	require.NoError(t, err)

	// WHEN: Resolving it
	ref, acct, err := ledger.NewResolver(s).Resolve(ctx, "acc-1")

	// THEN: It resolves in the user kind, no guest is created
	require.NoError(t, err)
	assert.Equal(t, ledger.KindUser, ref.Kind)
	assert.Equal(t, int64(100), acct.Credits)
}

func TestResolver_GuestFoundSecond(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, ledger.KindGuest, ledger.Account{ID: "g-1", Credits: 40})
	require.NoError(t, err)

	ref, acct, err := ledger.NewResolver(s).Resolve(ctx, "g-1")

	require.NoError(t, err)
	assert.Equal(t, ledger.KindGuest, ref.Kind)
	assert.Equal(t, int64(40), acct.Credits)
}

func TestResolver_UnknownID_CreatesZeroedGuest(t *testing.T) {
	// GIVEN: An id in neither kind
	s := newTestStore(t)
	ctx := context.Background()

	// WHEN: Resolving it
	ref, acct, err := ledger.NewResolver(s).Resolve(ctx, "fresh-guest")

	// THEN: A guest row exists with zero credits and empty sets
	require.NoError(t, err)
	assert.Equal(t, ledger.KindGuest, ref.Kind)
	assert.Equal(t, int64(0), acct.Credits)
	assert.Empty(t, acct.UnlockedContentKeys)

	stored, err := s.GetByID(ctx, ledger.KindGuest, "fresh-guest")
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Credits)
}

func TestResolver_RepeatResolve_SameRow(t *testing.T) {
	// Two first-touches of a guest id must converge on one row.
	s := store.NewMemory()
	ctx := context.Background()
	r := ledger.NewResolver(s)

	_, first, err := r.Resolve(ctx, "g-race")
	require.NoError(t, err)

	credits := int64(250)
	require.NoError(t, s.UpdateByID(ctx, ledger.KindGuest, "g-race", ledger.AccountUpdate{Credits: &credits}))

	_, second, err := r.Resolve(ctx, "g-race")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(250), second.Credits, "second resolve must see the existing row, not a fresh one")
}

func TestResolver_EmptyID_InvalidRequest(t *testing.T) {
	s := store.NewMemory()
	_, _, err := ledger.NewResolver(s).Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ledger.ErrInvalidRequest)
}

// =============================================================================
// LOOKUP (NON-CREATING)
// =============================================================================

func TestResolver_Lookup_MissingID_NotFound(t *testing.T) {
	s := store.NewMemory()
	_, _, err := ledger.NewResolver(s).Lookup(context.Background(), "nobody")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
