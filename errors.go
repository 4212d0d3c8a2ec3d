package x402

import "errors"

// Reason codes surfaced to clients in {error: reason} bodies and in
// VerifyResponse.InvalidReason / SettlementReceipt.ErrorReason. Clients use
// them to distinguish "pay again with a fresh challenge" from "retry the same
// intent" from "this resource cannot be purchased".
const (
	// Client-correctable: a fresh challenge is re-issued alongside these.
	ReasonMalformedPayload    = "malformed_payload"
	ReasonMismatchedPaymentID = "mismatched_payment_id"
	ReasonExpired             = "payment_expired"
	ReasonUnsupportedScheme   = "unsupported_scheme"
	ReasonInsufficientPayment = "insufficient_or_misdirected_payment"
	ReasonInvalidSignature    = "invalid_signature"
	ReasonReplayDetected      = "replay_detected"

	// Transient: the client may retry the same intent with a fresh payload.
	ReasonSettlementTimeout = "settlement_timeout"
	ReasonLedgerUnavailable = "ledger_unavailable"

	// Terminal ledger failure: the same payload can never settle.
	ReasonSettlementRejected = "settlement_rejected"

	// Server-side misconfiguration; details are logged, a generic failure is
	// surfaced.
	ReasonPolicyError = "policy_error"
)

// Sentinel errors for facilitator operations.
var (
	// ErrNoPolicy indicates no price policy exists for the requested resource.
	ErrNoPolicy = errors.New("x402: no payment policy for resource")

	// ErrUnsupportedScheme indicates no mechanism is registered for the
	// payload's (scheme, network) pair.
	ErrUnsupportedScheme = errors.New("x402: unsupported scheme or network")

	// ErrMalformedPayload indicates the payment header failed structural
	// decoding.
	ErrMalformedPayload = errors.New("x402: malformed payment payload")

	// ErrReplayDetected indicates the payment identifier was already consumed.
	ErrReplayDetected = errors.New("x402: payment already consumed")

	// ErrLedgerUnavailable indicates the ledger endpoint could not be reached.
	ErrLedgerUnavailable = errors.New("x402: ledger unavailable")
)

// RetryClass partitions reason codes by what the client should do next.
type RetryClass int

const (
	// RetryWithFreshChallenge: correct the payload and pay against the newly
	// issued challenge.
	RetryWithFreshChallenge RetryClass = iota
	// RetrySameIntent: the payment intent is fine, the attempt was transient.
	RetrySameIntent
	// NoRetry: the payment can never succeed as submitted.
	NoRetry
)

// ClassifyReason maps a reason code to its retry class. Unknown codes are
// treated as NoRetry.
func ClassifyReason(reason string) RetryClass {
	switch reason {
	case ReasonMalformedPayload, ReasonMismatchedPaymentID, ReasonExpired,
		ReasonUnsupportedScheme, ReasonInsufficientPayment,
		ReasonInvalidSignature, ReasonReplayDetected:
		return RetryWithFreshChallenge
	case ReasonSettlementTimeout, ReasonLedgerUnavailable:
		return RetrySameIntent
	default:
		return NoRetry
	}
}

// PaymentError is a structured error carrying a client-facing reason code.
// Facilitator and mechanism errors cross the gateway boundary as values of
// this type, never as raw panics or bare strings.
type PaymentError struct {
	Reason  string
	Message string
	Err     error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// NewPaymentError creates a PaymentError with the given reason code.
func NewPaymentError(reason, message string, err error) *PaymentError {
	return &PaymentError{Reason: reason, Message: message, Err: err}
}

// ReasonOf extracts the reason code from an error, falling back to
// policy_error for anything unstructured.
func ReasonOf(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ReasonPolicyError
}
