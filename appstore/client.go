/*
Package appstore wraps the App Store receipt verification authority.

PURPOSE:
  Implements ledger.ReceiptVerifier against Apple's verifyReceipt endpoints.
  The authority is a black box: we POST the receipt with the shared secret
  and read back a status plus the transactions it actually recorded.

ENVIRONMENT BOUNCE:
  Receipts signed in the sandbox yield status 21007 from the production
  endpoint. Policy: retry exactly once against the sandbox endpoint. A
  second 21007 is treated as a rejection - never bounce again, or a
  misbehaving authority could ping-pong us forever.

TIMEOUTS:
  The HTTP client carries a bounded timeout. A timeout surfaces as
  ledger.ErrVerificationUnreachable; no ledger mutation can have happened
  yet, so callers simply fail the purchase.

USAGE:
  client := appstore.New(sharedSecret)
  verified, err := client.Verify(ctx, receiptBlob)

SEE ALSO:
  - ledger/store.go: ReceiptVerifier contract
  - ledger/credit.go: The only consumer
*/
package appstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fable/credit-engine/ledger"
)

const (
	ProductionURL = "https://buy.itunes.apple.com/verifyReceipt"
	SandboxURL    = "https://sandbox.itunes.apple.com/verifyReceipt"

	// statusValid and statusSandboxReceipt are the only statuses that do not
	// reject the receipt outright.
	statusValid           = 0
	statusSandboxReceipt  = 21007
	defaultRequestTimeout = 10 * time.Second
)

// Client verifies receipts against the production endpoint, bouncing to the
// sandbox endpoint at most once.
type Client struct {
	httpClient    *http.Client
	sharedSecret  string
	productionURL string
	sandboxURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithEndpoints overrides both verification endpoints. Used by tests.
func WithEndpoints(production, sandbox string) Option {
	return func(c *Client) {
		c.productionURL = production
		c.sandboxURL = sandbox
	}
}

// New creates a verification client with the app's shared secret.
func New(sharedSecret string, opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: defaultRequestTimeout},
		sharedSecret:  sharedSecret,
		productionURL: ProductionURL,
		sandboxURL:    SandboxURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type verifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

type verifyResponse struct {
	Status      int    `json:"status"`
	Environment string `json:"environment"`
	Receipt     struct {
		InApp []struct {
			ProductID     string `json:"product_id"`
			TransactionID string `json:"transaction_id"`
		} `json:"in_app"`
	} `json:"receipt"`
}

// =============================================================================
// VERIFICATION
// =============================================================================

// Verify implements ledger.ReceiptVerifier.
func (c *Client) Verify(ctx context.Context, receipt string) (*ledger.VerifiedReceipt, error) {
	resp, err := c.post(ctx, c.productionURL, receipt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrVerificationUnreachable, err)
	}

	if resp.Status == statusSandboxReceipt {
		resp, err = c.post(ctx, c.sandboxURL, receipt)
		if err != nil {
			return nil, fmt.Errorf("%w: sandbox retry: %v", ledger.ErrVerificationUnreachable, err)
		}
		if resp.Status == statusSandboxReceipt {
			// Both environments claim the other one; stop bouncing.
			return nil, fmt.Errorf("%w: wrong environment from both endpoints",
				ledger.ErrVerificationRejected)
		}
	}

	if resp.Status != statusValid {
		return nil, &ledger.VerificationError{Status: resp.Status}
	}

	out := &ledger.VerifiedReceipt{
		Status:      resp.Status,
		Environment: resp.Environment,
	}
	for _, tx := range resp.Receipt.InApp {
		out.Transactions = append(out.Transactions, ledger.ReceiptTransaction{
			ProductID:     tx.ProductID,
			TransactionID: tx.TransactionID,
		})
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, url, receipt string) (*verifyResponse, error) {
	body, err := json.Marshal(verifyRequest{
		ReceiptData:            receipt,
		Password:               c.sharedSecret,
		ExcludeOldTransactions: true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authority returned HTTP %d", httpResp.StatusCode)
	}

	var resp verifyResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
