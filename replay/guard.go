// Package replay tracks consumed payment identifiers so a proof of payment
// can never be redeemed twice. Stores provide atomic insert-if-absent
// semantics; TryConsume is the single serialization point for concurrent
// settlements of one paymentId.
package replay

import (
	"context"
	"errors"
	"time"
)

// ErrAlreadyConsumed is returned by Record lookups that expect a fresh id.
var ErrAlreadyConsumed = errors.New("replay: payment id already consumed")

// Record is the durable fact that a payment id was consumed. It embeds the
// transaction reference so that a crash between guard consumption and
// receipt persistence can be reconciled from the guard entry alone.
type Record struct {
	PaymentID            string    `json:"paymentId"`
	TransactionReference string    `json:"transactionReference"`
	ConsumedAt           time.Time `json:"consumedAt"`
}

// Store is a replay guard with record access and garbage collection. It
// extends the minimal guard contract (TryConsume/HasConsumed) used by the
// facilitator.
type Store interface {
	// TryConsume atomically inserts a record for paymentID. Exactly one
	// caller wins; all later attempts return false.
	TryConsume(ctx context.Context, paymentID, transactionReference string) (bool, error)

	// HasConsumed reports whether paymentID has a record.
	HasConsumed(ctx context.Context, paymentID string) (bool, error)

	// Get returns the record for paymentID, or nil if none exists.
	Get(ctx context.Context, paymentID string) (*Record, error)
}
