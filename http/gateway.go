// Package http gates HTTP resources behind x402 payments. The Gateway holds
// the transport-agnostic challenge/verify/settle flow; the gin and echo
// middlewares are thin adapters over it.
package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// Payment protocol headers.
const (
	HeaderPayment         = "X-Payment"
	HeaderPaymentResponse = "X-Payment-Response"
)

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Facilitator *x402.Facilitator
	Policy      x402.PricingPolicy

	// Network is the default network for prices that omit one.
	Network x402.Network

	// ChallengeTTL is how long an issued challenge stays redeemable.
	// Defaults to 5 minutes.
	ChallengeTTL time.Duration

	// MaxTimeoutSeconds bounds settlement per challenge. Defaults to 60.
	MaxTimeoutSeconds int

	// Notifier receives settlement events. May be nil.
	Notifier x402.NotificationSink

	// Recorder persists settlement outcomes. May be nil.
	Recorder x402.SettlementRecorder

	Logger *slog.Logger
}

// Gateway runs the payment flow for protected resources: issue a challenge
// for unpaid requests, verify and settle submitted payloads, and mint a fresh
// challenge on every rejection.
type Gateway struct {
	facilitator *x402.Facilitator
	policy      x402.PricingPolicy
	challenges  *ChallengeStore
	network     x402.Network
	maxTimeout  int
	notifier    x402.NotificationSink
	recorder    x402.SettlementRecorder
	logger      *slog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(config GatewayConfig) *Gateway {
	ttl := config.ChallengeTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	maxTimeout := config.MaxTimeoutSeconds
	if maxTimeout <= 0 {
		maxTimeout = 60
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		facilitator: config.Facilitator,
		policy:      config.Policy,
		challenges:  NewChallengeStore(ttl),
		network:     config.Network,
		maxTimeout:  maxTimeout,
		notifier:    config.Notifier,
		recorder:    config.Recorder,
		logger:      logger,
	}
}

// Outcome is the result of processing one request through the payment flow.
type Outcome struct {
	// Proceed is true when the resource should be served. When payment was
	// involved, ReceiptHeader carries the encoded receipt for the
	// X-Payment-Response header and Verify the verification result.
	Proceed       bool
	ReceiptHeader string
	Verify        *x402.VerifyResponse

	// Challenge is the 402 body when Proceed is false.
	Challenge *x402.PaymentRequired
}

// Process runs the payment flow for one request. A nil Challenge with
// Proceed=false never happens: rejections always carry a fresh challenge.
// Infrastructure failures return an error; the adapter maps those to 5xx.
func (g *Gateway) Process(ctx context.Context, resource, paymentHeader string) (*Outcome, error) {
	price, err := g.policy.PriceFor(ctx, resource)
	if errors.Is(err, x402.ErrNoPolicy) {
		return &Outcome{Proceed: true}, nil
	}
	if err != nil {
		return nil, err
	}

	if paymentHeader == "" {
		g.logger.Info("payment required", "resource", resource)
		return g.reject(resource, price, "payment required"), nil
	}

	payload, err := x402.DecodePayment(paymentHeader)
	if err != nil {
		g.logger.Warn("malformed payment header", "resource", resource, "error", err)
		return g.reject(resource, price, x402.ReasonOf(err)), nil
	}

	requirements, ok := g.challenges.Get(payload.PaymentID)
	if !ok || requirements.Resource != resource {
		g.logger.Warn("payment does not match an outstanding challenge",
			"resource", resource, "paymentId", payload.PaymentID)
		return g.reject(resource, price, x402.ReasonMismatchedPaymentID), nil
	}

	verify, err := g.facilitator.Verify(ctx, payload, requirements)
	if err != nil {
		g.logger.Error("verification error", "paymentId", payload.PaymentID, "error", err)
	}
	if verify == nil || !verify.IsValid {
		reason := x402.ReasonPolicyError
		if verify != nil {
			reason = verify.InvalidReason
		}
		g.logger.Warn("payment rejected", "paymentId", payload.PaymentID, "reason", reason)
		g.challenges.Remove(payload.PaymentID)
		return g.reject(resource, price, reason), nil
	}

	receipt, err := g.facilitator.Settle(ctx, payload, requirements)
	if receipt == nil {
		if err == nil {
			err = x402.NewPaymentError(x402.ReasonLedgerUnavailable, "settlement produced no receipt", nil)
		}
		return nil, err
	}
	g.record(ctx, payload.PaymentID, resource, receipt)

	if !receipt.Success {
		g.logger.Warn("settlement failed",
			"paymentId", payload.PaymentID, "reason", receipt.ErrorReason, "txRef", receipt.TransactionReference)
		g.challenges.Remove(payload.PaymentID)
		return g.reject(resource, price, receipt.ErrorReason), nil
	}

	g.challenges.Remove(payload.PaymentID)

	encoded, err := x402.EncodeReceipt(*receipt)
	if err != nil {
		return nil, err
	}

	g.logger.Info("payment settled",
		"paymentId", payload.PaymentID, "txRef", receipt.TransactionReference, "payer", receipt.Payer)

	if g.notifier != nil {
		g.notifier.Notify(x402.SettlementEvent{
			PaymentID: payload.PaymentID,
			Resource:  resource,
			Receipt:   *receipt,
			EmittedAt: time.Now(),
		})
	}

	return &Outcome{Proceed: true, ReceiptHeader: encoded, Verify: verify}, nil
}

// record persists a settlement outcome. Persistence failures are logged,
// never surfaced: the receipt already exists, losing the audit row must not
// fail the payment. The write is detached from the request context so a
// client disconnect after settlement cannot lose the row.
func (g *Gateway) record(ctx context.Context, paymentID, resource string, receipt *x402.SettlementReceipt) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.RecordSettlement(context.WithoutCancel(ctx), paymentID, resource, *receipt); err != nil {
		g.logger.Error("failed to record settlement", "paymentId", paymentID, "error", err)
	}
}

// reject issues a fresh challenge. The old paymentId, if any, is already
// removed; it is never reissued.
func (g *Gateway) reject(resource string, price x402.Price, reason string) *Outcome {
	scheme := price.Scheme
	if scheme == "" {
		scheme = x402.SchemeExact
	}
	network := price.Network
	if network == "" {
		network = g.network
	}
	price.Scheme = scheme
	price.Network = network

	extra := g.facilitator.ExtraFor(scheme, network)
	requirements := g.challenges.Issue(resource, price, g.maxTimeout, extra)

	return &Outcome{
		Challenge: &x402.PaymentRequired{
			X402Version: x402.X402Version,
			Error:       reason,
			Accepts:     []x402.PaymentRequirements{requirements},
		},
	}
}

// Challenges exposes the challenge store, mainly for tests and metrics.
func (g *Gateway) Challenges() *ChallengeStore {
	return g.challenges
}
