/*
Package ledger provides the core credit ledger reconciliation engine.

PURPOSE:
  This package contains the account model and the three engines that are
  allowed to mutate it: purchase crediting, chapter unlock, and account
  merge. The same account row backs registered users and anonymous guests;
  the engines never care which, they operate on an AccountRef resolved by
  the Resolver.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: A credit-holding identity (user or guest)
  - AccountRef: Which kind a resolved account lives in, plus its id
  - CreditPackage: A purchasable bundle of credits (static catalog entry)
  - VerifiedReceipt: The receipt authority's answer for a purchase
  - ContentKey: Canonical "<contentId>:<unitNumber>" unlock key

DESIGN PRINCIPLES:
  1. Idempotency: Every credit is gated by transaction id and (for one-time
     offers) product id; replays are successful no-ops, never double credits
  2. Single row of atomicity: balance and history sets for one account are
     written together or not at all
  3. Kind polymorphism: User and Guest are the same shape; storage operations
     are parameterized by AccountKind instead of duplicated per kind

USAGE:
  store, _ := sqlite.New("./fable.db")
  engine := ledger.NewCreditEngine(store, verifier, catalog)
  res, err := engine.Credit(ctx, accountID, productID, txnID, receipt)

SEE ALSO:
  - resolver.go: Account lookup and lazy guest creation
  - credit.go: Purchase crediting engine
  - unlock.go: Chapter unlock engine
  - merge.go: Guest-into-user merge engine
  - settings.go: Codec for the opaque per-account settings blob
*/
package ledger

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT - Credit-holding identity
// =============================================================================

// AccountKind distinguishes where an account row lives. An id exists in at
// most one kind at a time; the Resolver searches User before Guest.
type AccountKind string

const (
	KindUser  AccountKind = "user"
	KindGuest AccountKind = "guest"
)

// AccountRef identifies a resolved account: which kind it was found in and
// its stable id. Engines write back through the ref so a guest credit lands
// in the guest row and a user credit in the user row.
type AccountRef struct {
	Kind AccountKind
	ID   string
}

// Account is the single unit of atomicity in this system. Balance and the
// history sets are always persisted together.
type Account struct {
	ID      string
	Email   string // empty for guests
	Credits int64  // invariant: never negative

	// UnlockedContentKeys holds "<contentId>:<unitNumber>" entries for paid
	// chapters this account has unlocked.
	UnlockedContentKeys []string

	// Bookmarks is owned by the reading subsystem; this package only unions
	// it during merge and otherwise passes it through untouched.
	Bookmarks []string

	// Settings is the opaque per-account settings blob. The purchased
	// one-time products and processed transaction ids live inside it; use
	// DecodeSettings/EncodeSettings rather than touching it directly.
	Settings json.RawMessage

	CreatedAt time.Time
}

// =============================================================================
// CREDIT PACKAGE - Static catalog entry
// =============================================================================

// CreditPackage describes a purchasable bundle of credits. The catalog is
// immutable at runtime; packages are joined to receipts by
// PurchaseProductID.
type CreditPackage struct {
	PackageID         string
	Name              string
	PurchaseProductID string // the store's product identifier
	TotalCredits      int64
	IsOneTimeOffer    bool // creditable at most once per account, ever

	// Price is display-only (storefront listing); crediting never reads it.
	Price decimal.Decimal
}

// =============================================================================
// VERIFIED RECEIPT - Receipt authority response
// =============================================================================

// ReceiptTransaction is one purchase recorded inside a store-signed receipt.
// These identifiers are the source of truth; caller-supplied ids are only
// claims to be checked against them.
type ReceiptTransaction struct {
	ProductID     string
	TransactionID string
}

// VerifiedReceipt is the receipt authority's decoded answer.
type VerifiedReceipt struct {
	Status       int
	Environment  string
	Transactions []ReceiptTransaction
}

// =============================================================================
// CONTENT KEYS
// =============================================================================

// ContentKey builds the canonical unlock key for a content unit.
func ContentKey(contentID string, unitNumber int) string {
	return fmt.Sprintf("%s:%d", contentID, unitNumber)
}

// =============================================================================
// ENGINE RESULTS
// =============================================================================

// CreditResult reports the outcome of a crediting call. CreditsAdded is zero
// when an idempotency gate short-circuited the call.
type CreditResult struct {
	CreditsAdded int64
	NewBalance   int64
}

// UnlockResult reports the outcome of an unlock call. Free is true when the
// unit sits below the paid threshold; in that case the account store was
// never touched and NewBalance carries no information.
type UnlockResult struct {
	CreditsDeducted int64
	NewBalance      int64
	Free            bool
}

// MergeResult reports the outcome of a guest-into-user merge.
type MergeResult struct {
	CreditsAdded int64
	NewBalance   int64
}

// =============================================================================
// STRING SETS - shared by settings codec and merge
// =============================================================================

// StringSet is a plain set of strings with deterministic serialization.
type StringSet map[string]struct{}

func NewStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

func (s StringSet) Has(v string) bool { _, ok := s[v]; return ok }

func (s StringSet) Add(v string) { s[v] = struct{}{} }

// Union returns a new set containing every member of s and other.
func (s StringSet) Union(other StringSet) StringSet {
	out := make(StringSet, len(s)+len(other))
	for v := range s {
		out[v] = struct{}{}
	}
	for v := range other {
		out[v] = struct{}{}
	}
	return out
}

// Sorted returns the members in lexical order, for stable encodings.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// unionOrdered unions two slices preserving the order of a, then appending
// members of b not already present. Used for unlocked keys and bookmarks,
// where insertion order is user-visible.
func unionOrdered(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, v := range b {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
