/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error kinds of the credit ledger in one place. Callers (HTTP handlers)
  classify them with the helpers at the bottom instead of matching messages.

ERROR CATEGORIES:
  1. Request errors   - Caller input missing or inconsistent
  2. Account errors   - Store unreachable, or a required row missing
  3. Verification     - Receipt authority transport or validity failures
  4. Catalog errors   - Receipt/catalog mismatch, unknown content
  5. Ledger errors    - Business-rule rejections and persistence failures

RETRY SEMANTICS:
  ErrLedgerWriteFailed is the only failure callers may safely retry: all
  validation already passed and the idempotency gates make a retry unable
  to double-credit.

USAGE:
  if errors.Is(err, ledger.ErrInsufficientCredits) {
      var ice *ledger.InsufficientCreditsError
      errors.As(err, &ice) // ice.Required, ice.Current for client display
  }

SEE ALSO:
  - credit.go, unlock.go, merge.go: Producers of these errors
  - api/handlers.go: HTTP status mapping
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidRequest is returned when caller input is missing or malformed.
	// A receipt without a bound transaction id falls here: accepting one would
	// open the replay door.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrAccountUnavailable is returned when the account store cannot be
	// reached or fails mid-operation. The enclosing operation is aborted with
	// no partial credit or unlock.
	ErrAccountUnavailable = errors.New("account store unavailable")

	// ErrAccountNotFound is returned when an operation requires an existing
	// row (merge) and it is absent. Resolution paths that may create a guest
	// never return this.
	ErrAccountNotFound = errors.New("account not found")

	// ErrVerificationUnreachable is returned on receipt authority transport
	// failure or timeout. No ledger mutation has happened at that point.
	ErrVerificationUnreachable = errors.New("receipt verification unreachable")

	// ErrVerificationRejected is returned when the authority reports a status
	// that is neither valid nor the single allowed environment bounce.
	ErrVerificationRejected = errors.New("receipt rejected by verification authority")

	// ErrTransactionNotFound is returned when the caller-claimed
	// (productId, transactionId) pair does not appear in the verified receipt.
	// Signals tampering or client misconfiguration; not retried.
	ErrTransactionNotFound = errors.New("transaction not found in verified receipt")

	// ErrUnknownProduct is returned when the receipt-asserted product id has
	// no catalog entry.
	ErrUnknownProduct = errors.New("unknown product")

	// ErrInsufficientCredits is returned when an unlock costs more than the
	// account holds. Wrapped by InsufficientCreditsError with the numbers.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrContentNotFound is returned when the requested content unit does not
	// exist in the content catalog.
	ErrContentNotFound = errors.New("content not found")

	// ErrLedgerWriteFailed is returned when persistence fails after all
	// validation passed. Safe to retry.
	ErrLedgerWriteFailed = errors.New("ledger write failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientCreditsError carries the numbers clients display when an
// unlock is declined for lack of balance.
type InsufficientCreditsError struct {
	ContentKey string
	Required   int64
	Current    int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits for %s: required %d, current %d",
		e.ContentKey, e.Required, e.Current)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}

// VerificationError carries the authority's raw status code.
type VerificationError struct {
	Status int
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("receipt verification failed with status %d", e.Status)
}

func (e *VerificationError) Unwrap() error {
	return ErrVerificationRejected
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry. Only
// post-validation persistence failures qualify: the idempotency gates make
// the retry safe.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLedgerWriteFailed)
}

// IsClientError returns true if the error is due to invalid client input or
// a business-rule rejection (4xx-equivalent).
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrUnknownProduct) ||
		errors.Is(err, ErrInsufficientCredits) ||
		errors.Is(err, ErrVerificationRejected)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrContentNotFound)
}
