package x402

import (
	"context"
	"time"
)

// SchemeNetworkFacilitator is implemented by facilitator-side payment
// mechanisms, one per payment scheme per blockchain family. The facilitator
// routes verify/settle calls to the mechanism registered for the payload's
// (scheme, network) pair.
type SchemeNetworkFacilitator interface {
	Scheme() string

	// CaipFamily returns the CAIP family pattern this mechanism supports,
	// e.g. "solana:*".
	CaipFamily() string

	// GetExtra returns mechanism-specific extra data merged into issued
	// payment requirements (for Solana, the feePayer address). May be nil.
	GetExtra(network Network) map[string]interface{}

	// GetSigners returns signer addresses used by this mechanism for a given
	// network, advertised through the supported-kinds response.
	GetSigners(network Network) []string

	// Verify performs the scheme-specific structural checks: the transaction
	// decodes, contains a transfer of at least the required amount of the
	// required asset to the required recipient, and carries a valid payer
	// signature. It never touches the ledger.
	Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error)

	// Settle submits the transaction to the ledger and awaits finality,
	// bounded by requirements.MaxTimeoutSeconds.
	Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettlementReceipt, error)
}

// ReplayGuard tracks consumed payment identifiers. TryConsume is the sole
// serialization point for concurrent settlements of one paymentId: it must be
// an atomic test-and-set, and exactly one caller wins.
type ReplayGuard interface {
	// TryConsume atomically records paymentID as consumed by the given
	// transaction reference. Returns false if it was already consumed.
	TryConsume(ctx context.Context, paymentID, transactionReference string) (bool, error)

	// HasConsumed reports whether paymentID has been consumed.
	HasConsumed(ctx context.Context, paymentID string) (bool, error)
}

// PricingPolicy supplies the price for a resource. Implementations may be
// static configuration or an external price source.
type PricingPolicy interface {
	// PriceFor returns the price policy for a resource identifier, or
	// ErrNoPolicy if the resource has no price.
	PriceFor(ctx context.Context, resource string) (Price, error)
}

// SettlementRecorder persists settlement outcomes for audit and crash
// reconciliation. Recording failures never fail the payment flow.
type SettlementRecorder interface {
	RecordSettlement(ctx context.Context, paymentID, resource string, receipt SettlementReceipt) error
}

// NotificationSink receives fire-and-forget events after settlement. A slow
// or failing sink never delays or fails the client-facing response.
type NotificationSink interface {
	Notify(event SettlementEvent)
}

// SettlementEvent is emitted after a payment reaches FULFILLED.
type SettlementEvent struct {
	PaymentID string            `json:"paymentId"`
	Resource  string            `json:"resource"`
	Receipt   SettlementReceipt `json:"receipt"`
	EmittedAt time.Time         `json:"emittedAt"`
}
