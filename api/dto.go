/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal account model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and in the engines, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/fable/credit-engine/content"
	"github.com/fable/credit-engine/ledger"
)

// =============================================================================
// ACCOUNT TYPES
// =============================================================================

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID                  string   `json:"id"`
	Kind                string   `json:"kind"`
	Email               string   `json:"email,omitempty"`
	Credits             int64    `json:"credits"`
	UnlockedContentKeys []string `json:"unlocked_content_keys"`
	Bookmarks           []string `json:"bookmarks"`
	CreatedAt           string   `json:"created_at,omitempty"`
}

// RegisterUserRequest creates (or returns) a registered user account. In
// production this is called by the identity-provider callback after email
// verification.
type RegisterUserRequest struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// BalanceDTO is the slim balance view.
type BalanceDTO struct {
	ID      string `json:"id"`
	Credits int64  `json:"credits"`
}

// =============================================================================
// LEDGER OPERATION TYPES
// =============================================================================

// CreditRequest is the purchase-crediting request body.
type CreditRequest struct {
	ProductID     string `json:"product_id"`
	TransactionID string `json:"transaction_id"`
	Receipt       string `json:"receipt"`
}

// CreditResponse reports the crediting outcome.
type CreditResponse struct {
	CreditsAdded int64 `json:"credits_added"`
	NewBalance   int64 `json:"new_balance"`
}

// UnlockRequest is the chapter-unlock request body.
type UnlockRequest struct {
	ContentID string `json:"content_id"`
	Chapter   int    `json:"chapter"`
}

// UnlockResponse reports the unlock outcome. Free chapters report no
// balance: the account is never consulted for them.
type UnlockResponse struct {
	CreditsDeducted int64  `json:"credits_deducted"`
	NewBalance      *int64 `json:"new_balance,omitempty"`
	Free            bool   `json:"free,omitempty"`
}

// MergeRequest merges a guest account into the addressed user account.
type MergeRequest struct {
	SourceID string `json:"source_id"`
}

// MergeResponse reports the merge outcome.
type MergeResponse struct {
	CreditsAdded int64 `json:"credits_added"`
	NewBalance   int64 `json:"new_balance"`
}

// =============================================================================
// CATALOG TYPES
// =============================================================================

// PackageDTO represents a credit package in storefront listings.
type PackageDTO struct {
	PackageID    string `json:"package_id"`
	Name         string `json:"name"`
	ProductID    string `json:"product_id"`
	Credits      int64  `json:"credits"`
	OneTimeOffer bool   `json:"one_time_offer"`
	Price        string `json:"price"`
}

// BookDTO represents a content item.
type BookDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Chapters    int    `json:"chapters"`
	ChapterCost int64  `json:"chapter_cost"`
}

// ErrorResponse is the uniform error envelope. Required/Current are only
// set for insufficient-credit rejections.
type ErrorResponse struct {
	Error    string `json:"error"`
	Details  string `json:"details,omitempty"`
	Required *int64 `json:"required,omitempty"`
	Current  *int64 `json:"current,omitempty"`
}

// =============================================================================
// MAPPING HELPERS
// =============================================================================

func accountDTO(ref ledger.AccountRef, a *ledger.Account) AccountDTO {
	dto := AccountDTO{
		ID:                  a.ID,
		Kind:                string(ref.Kind),
		Email:               a.Email,
		Credits:             a.Credits,
		UnlockedContentKeys: a.UnlockedContentKeys,
		Bookmarks:           a.Bookmarks,
	}
	if dto.UnlockedContentKeys == nil {
		dto.UnlockedContentKeys = []string{}
	}
	if dto.Bookmarks == nil {
		dto.Bookmarks = []string{}
	}
	if !a.CreatedAt.IsZero() {
		dto.CreatedAt = a.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func packageDTO(p ledger.CreditPackage) PackageDTO {
	return PackageDTO{
		PackageID:    p.PackageID,
		Name:         p.Name,
		ProductID:    p.PurchaseProductID,
		Credits:      p.TotalCredits,
		OneTimeOffer: p.IsOneTimeOffer,
		Price:        p.Price.StringFixed(2),
	}
}

func bookDTO(b content.Book) BookDTO {
	return BookDTO{
		ID:          b.ID,
		Title:       b.Title,
		Chapters:    b.ChapterCount,
		ChapterCost: b.ChapterCost,
	}
}
