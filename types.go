// Package x402 implements the payment-required HTTP protocol core: the
// payment requirements model, the payment payload codec, and the facilitator
// (verify + settle) that mediates between a resource server and the ledger.
package x402

import (
	"fmt"
	"strings"
	"time"
)

// X402Version is the protocol version carried in payloads and 402 bodies.
const X402Version = 1

// SchemeExact is the single-transfer, amount-floor payment scheme.
const SchemeExact = "exact"

// Network represents a blockchain network identifier in CAIP-2 format
// Format: namespace:reference (e.g., "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp")
type Network string

// Parse splits the network into namespace and reference components
func (n Network) Parse() (namespace, reference string, err error) {
	parts := strings.Split(string(n), ":")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid network format: %s", n)
	}
	return parts[0], parts[1], nil
}

// Match checks if this network matches a pattern (supports wildcards)
// e.g., "solana:mainnet" matches "solana:*" and vice versa.
func (n Network) Match(pattern Network) bool {
	if n == pattern {
		return true
	}

	nStr := string(n)
	patternStr := string(pattern)

	if strings.HasSuffix(patternStr, ":*") {
		prefix := strings.TrimSuffix(patternStr, "*")
		return strings.HasPrefix(nStr, prefix)
	}

	if strings.HasSuffix(nStr, ":*") {
		prefix := strings.TrimSuffix(nStr, "*")
		return strings.HasPrefix(patternStr, prefix)
	}

	return false
}

// PaymentRequirements describes the payment a resource demands. One is issued
// per unpaid request and is immutable once issued; it is discarded after
// ExpiresAt or after successful settlement.
type PaymentRequirements struct {
	Scheme string `json:"scheme"`

	Network Network `json:"network"`

	// Asset is the token mint address the payment must transfer.
	Asset string `json:"asset"`

	// MaxAmountRequired is the price in the asset's base unit, as a decimal
	// string. Never a float: amounts stay integral end to end.
	MaxAmountRequired string `json:"maxAmountRequired"`

	// PayTo is the recipient address.
	PayTo string `json:"payTo"`

	// Resource is an opaque resource identifier, typically the request path.
	Resource    string `json:"resource"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`

	// MaxTimeoutSeconds bounds how long settlement may take once a payload
	// for this challenge is accepted.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// PaymentID is unique per challenge. A rejected payload always causes a
	// fresh challenge with a new PaymentID; old ones are never resurrected.
	PaymentID string `json:"paymentId"`

	// ExpiresAt is strictly after issuance time.
	ExpiresAt time.Time `json:"expiresAt"`

	// Extra carries scheme-specific data (e.g. feePayer for Solana).
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// PaymentPayload is the client's proof of intended payment: a signed
// transaction bound to one outstanding challenge. It is consumed exactly once;
// reuse is rejected by the replay guard.
type PaymentPayload struct {
	X402Version int `json:"x402Version"`

	// PaymentID must match an outstanding PaymentRequirements.
	PaymentID string `json:"paymentId"`

	Scheme  string  `json:"scheme"`
	Network Network `json:"network"`

	// Transaction is the signed transaction, base64-encoded.
	Transaction string `json:"transaction"`

	// Signature is an optional detached signature. Solana transactions carry
	// their signatures inline, so it is usually empty.
	Signature string `json:"signature,omitempty"`
}

// PaymentRequired is the 402 response body sent to clients.
type PaymentRequired struct {
	X402Version int                   `json:"x402Version"`
	Error       string                `json:"error,omitempty"`
	Accepts     []PaymentRequirements `json:"accepts"`
}

// VerifyResponse is the result of local payload verification. Verification
// never touches the ledger; invalid payloads fail fast without consuming
// network resources.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`

	// Payer is the address that signed the payment, when verification got far
	// enough to establish it.
	Payer string `json:"payer,omitempty"`
}

// SettlementReceipt is the result of an on-ledger settlement attempt. It is
// created once per attempt and never mutated; Success=true implies
// TransactionReference names a finalized ledger transaction.
type SettlementReceipt struct {
	Success              bool      `json:"success"`
	TransactionReference string    `json:"transactionReference"`
	NetworkID            Network   `json:"networkId"`
	ConfirmedAt          time.Time `json:"confirmedAt,omitzero"`
	ErrorReason          string    `json:"error,omitempty"`
	Payer                string    `json:"payer,omitempty"`
}

// SupportedKind represents a single supported payment configuration
type SupportedKind struct {
	X402Version int                    `json:"x402Version"`
	Scheme      string                 `json:"scheme"`
	Network     Network                `json:"network"`
	Extra       map[string]interface{} `json:"extra,omitempty"`
}

// SupportedResponse describes what payment kinds a facilitator supports
type SupportedResponse struct {
	Kinds []SupportedKind `json:"kinds"`
}

// Price is what a pricing policy returns for a resource: asset, amount in
// base units, and recipient.
type Price struct {
	Asset   string  `json:"asset"`
	Amount  string  `json:"amount"`
	PayTo   string  `json:"payTo"`
	Scheme  string  `json:"scheme,omitempty"`
	Network Network `json:"network,omitempty"`
}
