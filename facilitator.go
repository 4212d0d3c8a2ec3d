package x402

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Facilitator manages payment verification and settlement. Mechanisms are
// registered per (scheme, network); networks may be registered with CAIP-2
// wildcards ("solana:*").
//
// Verification is pure local validation and runs synchronously in the request
// path. Settlement performs ledger I/O and is bounded by the challenge's
// MaxTimeoutSeconds; concurrent settlements of the same payload coalesce
// through the settlement cache, and the replay guard's atomic TryConsume
// guarantees at most one successful settlement per paymentId.
type Facilitator struct {
	mu      sync.RWMutex
	schemes map[Network]map[string]SchemeNetworkFacilitator

	guard ReplayGuard
	cache *SettlementCache
}

// NewFacilitator creates a Facilitator backed by the given replay guard.
func NewFacilitator(guard ReplayGuard) *Facilitator {
	return &Facilitator{
		schemes: make(map[Network]map[string]SchemeNetworkFacilitator),
		guard:   guard,
		cache:   NewSettlementCache(10 * time.Minute),
	}
}

// Register registers a mechanism for a network (exact or wildcard).
func (f *Facilitator) Register(network Network, mechanism SchemeNetworkFacilitator) *Facilitator {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.schemes[network] == nil {
		f.schemes[network] = make(map[string]SchemeNetworkFacilitator)
	}
	f.schemes[network][mechanism.Scheme()] = mechanism
	return f
}

// findSchemes returns the scheme map for a network, honoring wildcard
// registrations in either direction.
func (f *Facilitator) findSchemes(network Network) map[string]SchemeNetworkFacilitator {
	if schemes, ok := f.schemes[network]; ok {
		return schemes
	}
	for registered, schemes := range f.schemes {
		if network.Match(registered) {
			return schemes
		}
	}
	return nil
}

func (f *Facilitator) mechanismFor(scheme string, network Network) (SchemeNetworkFacilitator, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	schemes := f.findSchemes(network)
	if schemes == nil {
		return nil, NewPaymentError(ReasonUnsupportedScheme,
			fmt.Sprintf("no mechanism for network %s", network), ErrUnsupportedScheme)
	}
	mechanism := schemes[scheme]
	if mechanism == nil {
		return nil, NewPaymentError(ReasonUnsupportedScheme,
			fmt.Sprintf("no mechanism for %s on %s", scheme, network), ErrUnsupportedScheme)
	}
	return mechanism, nil
}

// Verify checks a payload against its requirements without touching the
// ledger. Checks run in a fixed order and short-circuit on first failure:
// paymentId binding, expiry, scheme/network support, structural transfer
// checks, payer signature, replay.
func (f *Facilitator) Verify(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*VerifyResponse, error) {
	if payload.PaymentID != requirements.PaymentID {
		return &VerifyResponse{IsValid: false, InvalidReason: ReasonMismatchedPaymentID}, nil
	}

	if !time.Now().Before(requirements.ExpiresAt) {
		return &VerifyResponse{IsValid: false, InvalidReason: ReasonExpired}, nil
	}

	if payload.Network != requirements.Network || payload.Scheme != requirements.Scheme {
		return &VerifyResponse{IsValid: false, InvalidReason: ReasonUnsupportedScheme}, nil
	}

	mechanism, err := f.mechanismFor(payload.Scheme, payload.Network)
	if err != nil {
		return &VerifyResponse{IsValid: false, InvalidReason: ReasonUnsupportedScheme}, nil
	}

	result, err := mechanism.Verify(ctx, payload, requirements)
	if err != nil {
		return &VerifyResponse{IsValid: false, InvalidReason: ReasonOf(err)}, err
	}
	if !result.IsValid {
		return result, nil
	}

	consumed, err := f.guard.HasConsumed(ctx, payload.PaymentID)
	if err != nil {
		return &VerifyResponse{IsValid: false, InvalidReason: ReasonPolicyError}, err
	}
	if consumed {
		return &VerifyResponse{IsValid: false, InvalidReason: ReasonReplayDetected}, nil
	}

	return result, nil
}

// Settle submits the payment to the ledger and awaits finality. The attempt
// is detached from the caller's cancellation: once a transaction has been
// handed to the ledger it is outside this system's control, so a client
// disconnect must not abort the attempt or the guard/receipt bookkeeping.
// The hard deadline is requirements.MaxTimeoutSeconds.
func (f *Facilitator) Settle(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettlementReceipt, error) {
	encoded, err := EncodePayment(payload)
	if err != nil {
		return nil, err
	}
	key := GenerateSettlementKey([]byte(encoded))

	status, cached, done := f.cache.CheckAndMark(key)
	switch status {
	case StatusCached:
		return cached, nil
	case StatusInFlight:
		result, err := f.cache.WaitForResult(ctx, key, done)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
		// In-flight attempt failed without caching; fall through and retry.
		return f.Settle(ctx, payload, requirements)
	}

	receipt, err := f.settleOnce(ctx, payload, requirements)
	if err != nil || !receipt.Success {
		f.cache.Fail(key, done)
		return receipt, err
	}
	f.cache.Complete(key, receipt, done)
	return receipt, nil
}

func (f *Facilitator) settleOnce(ctx context.Context, payload PaymentPayload, requirements PaymentRequirements) (*SettlementReceipt, error) {
	rejected := func(reason string) *SettlementReceipt {
		return &SettlementReceipt{Success: false, NetworkID: payload.Network, ErrorReason: reason}
	}

	// The guard and cache updates below must happen even if the caller
	// disconnects mid-settlement: once the transaction is on the ledger, the
	// bookkeeping has to complete or a replay of the paymentId would settle
	// twice.
	detached := context.WithoutCancel(ctx)

	consumed, err := f.guard.HasConsumed(detached, payload.PaymentID)
	if err != nil {
		return rejected(ReasonLedgerUnavailable), err
	}
	if consumed {
		return rejected(ReasonReplayDetected), nil
	}

	mechanism, err := f.mechanismFor(payload.Scheme, payload.Network)
	if err != nil {
		return rejected(ReasonUnsupportedScheme), nil
	}

	timeout := time.Duration(requirements.MaxTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	settleCtx, cancel := context.WithTimeout(detached, timeout)
	defer cancel()

	receipt, err := mechanism.Settle(settleCtx, payload, requirements)
	if err != nil {
		if receipt == nil {
			receipt = rejected(ReasonOf(err))
		}
		return receipt, err
	}
	if !receipt.Success {
		// Timeout or ledger rejection: the guard stays unconsumed so the
		// client may retry with a fresh payload.
		return receipt, nil
	}

	ok, err := f.guard.TryConsume(detached, payload.PaymentID, receipt.TransactionReference)
	if err != nil {
		return rejected(ReasonLedgerUnavailable), err
	}
	if !ok {
		// A racing settlement won; this attempt must not be reported as a
		// second success.
		return rejected(ReasonReplayDetected), nil
	}

	return receipt, nil
}

// ExtraFor returns the mechanism extra data advertised for a scheme and
// network, or nil when no mechanism is registered.
func (f *Facilitator) ExtraFor(scheme string, network Network) map[string]interface{} {
	mechanism, err := f.mechanismFor(scheme, network)
	if err != nil {
		return nil
	}
	return mechanism.GetExtra(network)
}

// GetSupported returns supported payment kinds across registered mechanisms.
func (f *Facilitator) GetSupported() SupportedResponse {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var kinds []SupportedKind
	for network, schemeMap := range f.schemes {
		for scheme, mechanism := range schemeMap {
			kinds = append(kinds, SupportedKind{
				X402Version: X402Version,
				Scheme:      scheme,
				Network:     network,
				Extra:       mechanism.GetExtra(network),
			})
		}
	}

	return SupportedResponse{Kinds: kinds}
}
