package appstore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fable/credit-engine/appstore"
	"github.com/fable/credit-engine/ledger"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type authorityResponse struct {
	Status      int    `json:"status"`
	Environment string `json:"environment,omitempty"`
	Receipt     any    `json:"receipt,omitempty"`
}

func inApp(pairs ...[2]string) any {
	txs := make([]map[string]string, len(pairs))
	for i, p := range pairs {
		txs[i] = map[string]string{"product_id": p[0], "transaction_id": p[1]}
	}
	return map[string]any{"in_app": txs}
}

// authority fakes one verification endpoint, recording what it received.
func authority(t *testing.T, resp authorityResponse, got *[]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if got != nil {
			*got = append(*got, body)
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestVerify_ValidReceipt(t *testing.T) {
	var seen []map[string]any
	production := authority(t, authorityResponse{
		Status:      0,
		Environment: "Production",
		Receipt:     inApp([2]string{"com.fable.credits.600", "txn_1"}),
	}, &seen)
	defer production.Close()

	client := appstore.New("secret", appstore.WithEndpoints(production.URL, "http://unused.invalid"))
	verified, err := client.Verify(context.Background(), "receipt-blob")

	require.NoError(t, err)
	assert.Equal(t, 0, verified.Status)
	assert.Equal(t, "Production", verified.Environment)
	require.Len(t, verified.Transactions, 1)
	assert.Equal(t, "com.fable.credits.600", verified.Transactions[0].ProductID)
	assert.Equal(t, "txn_1", verified.Transactions[0].TransactionID)

	// The wire request carries the receipt, the secret, and the
	// old-transaction exclusion flag.
	require.Len(t, seen, 1)
	assert.Equal(t, "receipt-blob", seen[0]["receipt-data"])
	assert.Equal(t, "secret", seen[0]["password"])
	assert.Equal(t, true, seen[0]["exclude-old-transactions"])
}

// =============================================================================
// ENVIRONMENT BOUNCE
// =============================================================================

func TestVerify_SandboxReceipt_RetriesOnce(t *testing.T) {
	// GIVEN: Production says "wrong environment", sandbox accepts
	production := authority(t, authorityResponse{Status: 21007}, nil)
	defer production.Close()
	var sandboxSeen []map[string]any
	sandbox := authority(t, authorityResponse{
		Status:      0,
		Environment: "Sandbox",
		Receipt:     inApp([2]string{"com.fable.credits.600", "txn_s"}),
	}, &sandboxSeen)
	defer sandbox.Close()

	client := appstore.New("secret", appstore.WithEndpoints(production.URL, sandbox.URL))

	// WHEN: Verifying a sandbox-signed receipt
	verified, err := client.Verify(context.Background(), "sandbox-receipt")

	// THEN: Exactly one sandbox retry, and its answer wins
	require.NoError(t, err)
	assert.Equal(t, "Sandbox", verified.Environment)
	assert.Len(t, sandboxSeen, 1)
}

func TestVerify_DoubleWrongEnvironment_Rejected(t *testing.T) {
	// Both endpoints claiming "wrong environment" must not ping-pong.
	production := authority(t, authorityResponse{Status: 21007}, nil)
	defer production.Close()
	var sandboxSeen []map[string]any
	sandbox := authority(t, authorityResponse{Status: 21007}, &sandboxSeen)
	defer sandbox.Close()

	client := appstore.New("secret", appstore.WithEndpoints(production.URL, sandbox.URL))
	_, err := client.Verify(context.Background(), "receipt")

	assert.ErrorIs(t, err, ledger.ErrVerificationRejected)
	assert.Len(t, sandboxSeen, 1, "exactly one retry, never more")
}

// =============================================================================
// FAILURES
// =============================================================================

func TestVerify_InvalidStatus_RejectedWithCode(t *testing.T) {
	production := authority(t, authorityResponse{Status: 21003}, nil)
	defer production.Close()

	client := appstore.New("secret", appstore.WithEndpoints(production.URL, "http://unused.invalid"))
	_, err := client.Verify(context.Background(), "bad-receipt")

	require.ErrorIs(t, err, ledger.ErrVerificationRejected)
	var ve *ledger.VerificationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, 21003, ve.Status)
}

func TestVerify_TransportError_Unreachable(t *testing.T) {
	// A closed server stands in for network failure.
	production := authority(t, authorityResponse{Status: 0}, nil)
	production.Close()

	client := appstore.New("secret", appstore.WithEndpoints(production.URL, "http://unused.invalid"))
	_, err := client.Verify(context.Background(), "receipt")

	assert.ErrorIs(t, err, ledger.ErrVerificationUnreachable)
}

func TestVerify_Timeout_Unreachable(t *testing.T) {
	production := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer production.Close()

	client := appstore.New("secret",
		appstore.WithEndpoints(production.URL, "http://unused.invalid"),
		appstore.WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, err := client.Verify(context.Background(), "receipt")

	assert.ErrorIs(t, err, ledger.ErrVerificationUnreachable)
}

func TestVerify_HTTPErrorStatus_Unreachable(t *testing.T) {
	production := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer production.Close()

	client := appstore.New("secret", appstore.WithEndpoints(production.URL, "http://unused.invalid"))
	_, err := client.Verify(context.Background(), "receipt")

	assert.ErrorIs(t, err, ledger.ErrVerificationUnreachable)
}
