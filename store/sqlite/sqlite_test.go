package sqlite_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fable/credit-engine/ledger"
	"github.com/fable/credit-engine/store/sqlite"
)

func newStore(t *testing.T) *sqlite.Store {
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// GET / UPSERT
// =============================================================================

func TestStore_GetByID_WrongKind_NotFound(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, ledger.KindGuest, ledger.Account{ID: "g-1"})
	require.NoError(t, err)

	_, err = s.GetByID(ctx, ledger.KindUser, "g-1")
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)

	acct, err := s.GetByID(ctx, ledger.KindGuest, "g-1")
	require.NoError(t, err)
	assert.Equal(t, "g-1", acct.ID)
}

func TestStore_Upsert_ExistingRowWins(t *testing.T) {
	// Concurrent first-touches of a guest id must converge: the second
	// upsert returns the row the first one created, never a reset.
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, ledger.KindGuest, ledger.Account{ID: "g-1"})
	require.NoError(t, err)
	credits := int64(500)
	require.NoError(t, s.UpdateByID(ctx, ledger.KindGuest, "g-1", ledger.AccountUpdate{Credits: &credits}))

	acct, err := s.Upsert(ctx, ledger.KindGuest, ledger.Account{ID: "g-1"})
	require.NoError(t, err)
	assert.Equal(t, int64(500), acct.Credits)
}

func TestStore_Upsert_KindCollision_Errors(t *testing.T) {
	// One id, one kind: an id living as a user cannot be re-created as a
	// guest.
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, ledger.KindUser, ledger.Account{ID: "id-1", Email: "u@example.com"})
	require.NoError(t, err)

	_, err = s.Upsert(ctx, ledger.KindGuest, ledger.Account{ID: "id-1"})
	assert.Error(t, err)
}

func TestStore_RoundTripsAllFields(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	settings := json.RawMessage(`{"theme":"dark","processed_transaction_ids":["t1"]}`)
	_, err := s.Upsert(ctx, ledger.KindUser, ledger.Account{
		ID:                  "u-1",
		Email:               "u@example.com",
		Credits:             42,
		UnlockedContentKeys: []string{"book1:6"},
		Bookmarks:           []string{"book1:3"},
		Settings:            settings,
	})
	require.NoError(t, err)

	acct, err := s.GetByID(ctx, ledger.KindUser, "u-1")
	require.NoError(t, err)
	assert.Equal(t, "u@example.com", acct.Email)
	assert.Equal(t, int64(42), acct.Credits)
	assert.Equal(t, []string{"book1:6"}, acct.UnlockedContentKeys)
	assert.Equal(t, []string{"book1:3"}, acct.Bookmarks)
	assert.JSONEq(t, string(settings), string(acct.Settings))
	assert.False(t, acct.CreatedAt.IsZero())
}

// =============================================================================
// PARTIAL UPDATES
// =============================================================================

func TestStore_UpdateByID_PartialFieldsOnly(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, ledger.KindGuest, ledger.Account{
		ID:                  "g-1",
		Credits:             100,
		UnlockedContentKeys: []string{"book1:6"},
		Bookmarks:           []string{"book1:2"},
	})
	require.NoError(t, err)

	credits := int64(70)
	err = s.UpdateByID(ctx, ledger.KindGuest, "g-1", ledger.AccountUpdate{
		Credits:             &credits,
		UnlockedContentKeys: []string{"book1:6", "book1:7"},
	})
	require.NoError(t, err)

	acct, err := s.GetByID(ctx, ledger.KindGuest, "g-1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), acct.Credits)
	assert.Equal(t, []string{"book1:6", "book1:7"}, acct.UnlockedContentKeys)
	assert.Equal(t, []string{"book1:2"}, acct.Bookmarks, "untouched field must survive")
}

func TestStore_UpdateByID_MissingRow_NotFound(t *testing.T) {
	s := newStore(t)
	credits := int64(1)
	err := s.UpdateByID(context.Background(), ledger.KindGuest, "nobody", ledger.AccountUpdate{Credits: &credits})
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestStore_UpdateByID_EmptyUpdate_NoOp(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	_, err := s.Upsert(ctx, ledger.KindGuest, ledger.Account{ID: "g-1", Credits: 5})
	require.NoError(t, err)

	require.NoError(t, s.UpdateByID(ctx, ledger.KindGuest, "g-1", ledger.AccountUpdate{}))

	acct, err := s.GetByID(ctx, ledger.KindGuest, "g-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), acct.Credits)
}

// =============================================================================
// LISTING
// =============================================================================

func TestStore_ListByKind(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, ledger.KindGuest, ledger.Account{ID: "g-1"})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, ledger.KindGuest, ledger.Account{ID: "g-2"})
	require.NoError(t, err)
	_, err = s.Upsert(ctx, ledger.KindUser, ledger.Account{ID: "u-1", Email: "u@example.com"})
	require.NoError(t, err)

	guests, err := s.ListByKind(ctx, ledger.KindGuest)
	require.NoError(t, err)
	assert.Len(t, guests, 2)

	users, err := s.ListByKind(ctx, ledger.KindUser)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "u-1", users[0].ID)
}

func TestStore_GetByID_CorruptCreatedAt_RowStaysReadable(t *testing.T) {
	// A row whose created_at text cannot be parsed must still load; the
	// timestamp zeroes out instead of sinking the whole account.
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := sqlite.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	_, err = s.Upsert(ctx, ledger.KindGuest, ledger.Account{ID: "g-1", Credits: 42})
	require.NoError(t, err)

	// Corrupt the timestamp out-of-band, the way a bad migration would.
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`UPDATE accounts SET created_at = 'not-a-timestamp' WHERE id = 'g-1'`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	acct, err := s.GetByID(ctx, ledger.KindGuest, "g-1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), acct.Credits)
	assert.True(t, acct.CreatedAt.IsZero())
}
