/*
settings.go - Codec for the opaque per-account settings blob

PURPOSE:
  The account row carries a free-form JSON settings blob shared with other
  subsystems. This ledger owns exactly two keys inside it: the purchased
  one-time products and the processed transaction ids. The codec extracts
  them into a typed Settings value and writes them back with a shallow
  merge so every key it does not own passes through verbatim.

TOLERANCE:
  Decoding never fails the caller. A null, absent, or malformed blob decodes
  to empty sets (malformed content is logged). A purchase must not be
  blocked because some other subsystem wrote garbage into settings.

SEE ALSO:
  - credit.go: Reads and writes both owned sets
  - merge.go: Unions the owned sets across two accounts
*/
package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
)

const (
	settingsKeyOneTimeProducts = "purchased_one_time_products"
	settingsKeyTransactionIDs  = "processed_transaction_ids"
)

// Settings holds the two ledger-owned sets extracted from the blob.
type Settings struct {
	PurchasedOneTimeProducts StringSet
	ProcessedTransactionIDs  StringSet
}

// NewSettings returns a Settings value with empty sets.
func NewSettings() Settings {
	return Settings{
		PurchasedOneTimeProducts: NewStringSet(),
		ProcessedTransactionIDs:  NewStringSet(),
	}
}

// DecodeSettings extracts the ledger-owned sets from a settings blob.
// Null/absent blobs and malformed JSON both decode to empty sets.
func DecodeSettings(blob json.RawMessage) Settings {
	s := NewSettings()
	if len(blob) == 0 || bytes.Equal(bytes.TrimSpace(blob), []byte("null")) {
		return s
	}

	var raw struct {
		OneTimeProducts []string `json:"purchased_one_time_products"`
		TransactionIDs  []string `json:"processed_transaction_ids"`
	}
	if err := json.Unmarshal(blob, &raw); err != nil {
		log.Printf("ledger: malformed settings blob, treating as empty: %v", err)
		return s
	}

	for _, p := range raw.OneTimeProducts {
		s.PurchasedOneTimeProducts.Add(p)
	}
	for _, t := range raw.TransactionIDs {
		s.ProcessedTransactionIDs.Add(t)
	}
	return s
}

// EncodeSettings writes the owned sets over the previous blob. Keys this
// ledger does not own are preserved byte-for-byte; a malformed previous blob
// is replaced rather than propagated.
func EncodeSettings(s Settings, prev json.RawMessage) (json.RawMessage, error) {
	merged := make(map[string]json.RawMessage)
	if len(prev) > 0 {
		if err := json.Unmarshal(prev, &merged); err != nil {
			log.Printf("ledger: previous settings blob unreadable, rewriting owned keys only: %v", err)
			merged = make(map[string]json.RawMessage)
		}
	}

	oneTime, err := json.Marshal(s.PurchasedOneTimeProducts.Sorted())
	if err != nil {
		return nil, fmt.Errorf("encode one-time products: %w", err)
	}
	txns, err := json.Marshal(s.ProcessedTransactionIDs.Sorted())
	if err != nil {
		return nil, fmt.Errorf("encode transaction ids: %w", err)
	}
	merged[settingsKeyOneTimeProducts] = oneTime
	merged[settingsKeyTransactionIDs] = txns

	return json.Marshal(merged)
}
