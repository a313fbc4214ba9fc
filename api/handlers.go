/*
handlers.go - HTTP API handlers for the credit ledger

PURPOSE:
  Exposes the ledger engines via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engines.

ENDPOINTS:
  Accounts:
    POST   /api/accounts/guest         Mint an anonymous guest account
    POST   /api/accounts/users         Register (or return) a user account
    GET    /api/accounts/{id}          Get account details
    GET    /api/accounts/{id}/balance  Get balance only

  Ledger:
    POST   /api/accounts/{id}/credit   Credit a verified purchase
    POST   /api/accounts/{id}/unlock   Unlock a chapter
    POST   /api/accounts/{id}/merge    Merge a guest into this account

  Catalog:
    GET    /api/packages               List credit packages
    GET    /api/books                  List books
    GET    /api/books/{id}             Get one book

  Admin:
    GET    /api/admin/accounts         List accounts by kind (?kind=user|guest)

ERROR HANDLING:
  Engine errors map to HTTP status via their taxonomy:
  - 400: invalid input, receipt/catalog mismatch, rejected receipt
  - 402: insufficient credits (with required/current in the body)
  - 404: account or content not found
  - 500: ledger write failure (client may retry safely)
  - 502: verification authority unreachable
  - 503: account store unavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fable/credit-engine/content"
	"github.com/fable/credit-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    ledger.AccountStore
	Lister   AccountLister
	Resolver *ledger.Resolver
	Credit   *ledger.CreditEngine
	Unlock   *ledger.UnlockEngine
	Merge    *ledger.MergeEngine
	Catalog  *ledger.PackageCatalog
	Library  *content.Library
}

// AccountLister is the optional store capability behind the admin listing
// endpoint. Both bundled stores implement it.
type AccountLister interface {
	ListByKind(ctx context.Context, kind ledger.AccountKind) ([]ledger.Account, error)
}

// NewHandler wires the engines over a shared store.
func NewHandler(store ledger.AccountStore, verifier ledger.ReceiptVerifier,
	catalog *ledger.PackageCatalog, library *content.Library) *Handler {
	h := &Handler{
		Store:    store,
		Resolver: ledger.NewResolver(store),
		Credit:   ledger.NewCreditEngine(store, verifier, catalog),
		Unlock:   ledger.NewUnlockEngine(store, library, ledger.DefaultFirstPaidUnit),
		Merge:    ledger.NewMergeEngine(store),
		Catalog:  catalog,
		Library:  library,
	}
	if lister, ok := store.(AccountLister); ok {
		h.Lister = lister
	}
	return h
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// CreateGuest mints a fresh guest account with a random id.
func (h *Handler) CreateGuest(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	acct, err := h.Store.Upsert(r.Context(), ledger.KindGuest, ledger.Account{
		ID:        id,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to create guest account", err)
		return
	}
	writeJSON(w, http.StatusCreated, accountDTO(ledger.AccountRef{Kind: ledger.KindGuest, ID: id}, acct))
}

// RegisterUser creates a registered user row, or returns the existing one.
// In production the identity provider calls this after verifying the email.
func (h *Handler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "id and email are required", nil)
		return
	}

	acct, err := h.Store.Upsert(r.Context(), ledger.KindUser, ledger.Account{
		ID:        req.ID,
		Email:     req.Email,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to register user", err)
		return
	}
	writeJSON(w, http.StatusCreated, accountDTO(ledger.AccountRef{Kind: ledger.KindUser, ID: req.ID}, acct))
}

// GetAccount returns the account under id, whichever kind it lives in.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ref, acct, err := h.Resolver.Lookup(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountDTO(ref, acct))
}

// GetBalance returns only the credit balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, acct, err := h.Resolver.Lookup(r.Context(), id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{ID: acct.ID, Credits: acct.Credits})
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// CreditPurchase applies a verified store purchase to the account balance.
func (h *Handler) CreditPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Credit.Credit(r.Context(), id, req.ProductID, req.TransactionID, req.Receipt)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CreditResponse{
		CreditsAdded: res.CreditsAdded,
		NewBalance:   res.NewBalance,
	})
}

// UnlockChapter unlocks one chapter, deducting its cost at most once.
func (h *Handler) UnlockChapter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Unlock.Unlock(r.Context(), id, req.ContentID, req.Chapter)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	resp := UnlockResponse{CreditsDeducted: res.CreditsDeducted, Free: res.Free}
	if !res.Free {
		balance := res.NewBalance
		resp.NewBalance = &balance
	}
	writeJSON(w, http.StatusOK, resp)
}

// MergeAccounts folds a guest's ledger state into the addressed account.
func (h *Handler) MergeAccounts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	res, err := h.Merge.Merge(r.Context(), id, req.SourceID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MergeResponse{
		CreditsAdded: res.CreditsAdded,
		NewBalance:   res.NewBalance,
	})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ListAccounts returns every account of one kind, ?kind=user|guest
// (default guest). Operational inspection only; nothing in the ledger
// flow calls this.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	if h.Lister == nil {
		writeError(w, http.StatusNotImplemented, "Account listing not supported by this store", nil)
		return
	}

	kind := ledger.AccountKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = ledger.KindGuest
	}
	if kind != ledger.KindUser && kind != ledger.KindGuest {
		writeError(w, http.StatusBadRequest, "kind must be user or guest", nil)
		return
	}

	accounts, err := h.Lister.ListByKind(r.Context(), kind)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i, acct := range accounts {
		a := acct
		dtos[i] = accountDTO(ledger.AccountRef{Kind: kind, ID: a.ID}, &a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListPackages returns the storefront credit packages.
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages := h.Catalog.List()
	dtos := make([]PackageDTO, len(packages))
	for i, p := range packages {
		dtos[i] = packageDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListBooks returns all books.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books := h.Library.List()
	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = bookDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBook returns one book.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, ok := h.Library.Book(id)
	if !ok {
		writeError(w, http.StatusNotFound, "Book not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, bookDTO(b))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps engine errors onto HTTP statuses.
func writeLedgerError(w http.ResponseWriter, err error) {
	var ice *ledger.InsufficientCreditsError
	if errors.As(err, &ice) {
		required, current := ice.Required, ice.Current
		writeJSON(w, http.StatusPaymentRequired, ErrorResponse{
			Error:    "Insufficient credits",
			Details:  err.Error(),
			Required: &required,
			Current:  &current,
		})
		return
	}

	switch {
	case errors.Is(err, ledger.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, ledger.ErrTransactionNotFound),
		errors.Is(err, ledger.ErrUnknownProduct),
		errors.Is(err, ledger.ErrVerificationRejected):
		writeError(w, http.StatusBadRequest, "Purchase could not be validated", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, ledger.ErrVerificationUnreachable):
		writeError(w, http.StatusBadGateway, "Receipt verification unavailable", err)
	case errors.Is(err, ledger.ErrAccountUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Account store unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
