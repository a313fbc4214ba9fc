/*
credit.go - Purchase crediting engine

PURPOSE:
  Turns an externally-verified, potentially-replayed purchase receipt into
  an exactly-once balance mutation. The pipeline is strict:

    1. Validate input (all four fields required)
    2. Verify the receipt with the authority
    3. Authenticate the caller's (productId, transactionId) claim against
       the verified transaction list
    4. Resolve the receipt-asserted product against the catalog
    5. Resolve the account
    6. Idempotency gates: one-time guard, then replay guard
    7. Persist balance + settings together

IDEMPOTENCY:
  Two independent gates, either of which short-circuits into a successful
  no-op (CreditsAdded = 0):
  - One-time guard: an isOneTimeOffer package already in the purchased set
    (covers IAP restore re-delivery of the same product)
  - Replay guard: a transaction id already in the processed set
    (covers retried client requests for the same credited transaction)

TRUST MODEL:
  The verified receipt is the source of truth. The caller's product and
  transaction ids must both appear in one recorded transaction; the catalog
  lookup then uses the receipt-asserted product id, never the claim.

SEE ALSO:
  - store.go: ReceiptVerifier contract
  - appstore/client.go: Apple verifyReceipt adapter
  - settings.go: Owned-set codec
*/
package ledger

import (
	"context"
	"fmt"
)

// CreditEngine validates receipts against the package catalog and credits
// account balances exactly once per transaction.
type CreditEngine struct {
	resolver *Resolver
	store    AccountStore
	verifier ReceiptVerifier
	catalog  *PackageCatalog
}

func NewCreditEngine(store AccountStore, verifier ReceiptVerifier, catalog *PackageCatalog) *CreditEngine {
	return &CreditEngine{
		resolver: NewResolver(store),
		store:    store,
		verifier: verifier,
		catalog:  catalog,
	}
}

// Credit applies a verified purchase to the account's balance. Replays of an
// already-credited transaction or one-time product return a successful no-op
// with CreditsAdded = 0 and the current balance.
func (e *CreditEngine) Credit(ctx context.Context, accountID, productID, transactionID, receipt string) (CreditResult, error) {
	if accountID == "" || productID == "" || transactionID == "" || receipt == "" {
		return CreditResult{}, fmt.Errorf(
			"%w: account id, product id, transaction id and receipt are all required", ErrInvalidRequest)
	}

	verified, err := e.verifier.Verify(ctx, receipt)
	if err != nil {
		return CreditResult{}, err
	}

	// Authenticate the claim: the exact pair must occur in a store-signed
	// transaction, not merely some valid receipt.
	var matched *ReceiptTransaction
	for i := range verified.Transactions {
		tx := &verified.Transactions[i]
		if tx.ProductID == productID && tx.TransactionID == transactionID {
			matched = tx
			break
		}
	}
	if matched == nil {
		return CreditResult{}, fmt.Errorf("%w: %s/%s", ErrTransactionNotFound, productID, transactionID)
	}

	// The receipt-asserted product id is authoritative from here on.
	pkg, ok := e.catalog.ByProductID(matched.ProductID)
	if !ok {
		return CreditResult{}, fmt.Errorf("%w: %s", ErrUnknownProduct, matched.ProductID)
	}

	ref, acct, err := e.resolver.Resolve(ctx, accountID)
	if err != nil {
		return CreditResult{}, err
	}
	settings := DecodeSettings(acct.Settings)

	// One-time guard.
	if pkg.IsOneTimeOffer && settings.PurchasedOneTimeProducts.Has(pkg.PurchaseProductID) {
		return CreditResult{CreditsAdded: 0, NewBalance: acct.Credits}, nil
	}

	// Replay guard.
	if settings.ProcessedTransactionIDs.Has(matched.TransactionID) {
		return CreditResult{CreditsAdded: 0, NewBalance: acct.Credits}, nil
	}

	newBalance := acct.Credits + pkg.TotalCredits
	if pkg.IsOneTimeOffer {
		settings.PurchasedOneTimeProducts.Add(pkg.PurchaseProductID)
	}
	settings.ProcessedTransactionIDs.Add(matched.TransactionID)

	blob, err := EncodeSettings(settings, acct.Settings)
	if err != nil {
		return CreditResult{}, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	update := AccountUpdate{
		Credits:  &newBalance,
		Settings: blob,
	}
	if err := e.store.UpdateByID(ctx, ref.Kind, ref.ID, update); err != nil {
		return CreditResult{}, fmt.Errorf("%w: %v", ErrLedgerWriteFailed, err)
	}

	return CreditResult{CreditsAdded: pkg.TotalCredits, NewBalance: newBalance}, nil
}
