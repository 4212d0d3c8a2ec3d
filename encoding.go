package x402

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Header codecs for the transport contract: payment payloads travel in the
// X-Payment request header, settlement receipts in the X-Payment-Response
// response header, both as base64-encoded JSON. Decoders ignore unknown
// fields (forward compatibility) but validate every known-required field.

// EncodePayment converts a PaymentPayload to a base64-encoded JSON string
// suitable for the X-Payment header.
func EncodePayment(payload PaymentPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodePayment converts a base64-encoded JSON string to a PaymentPayload.
// Any structural violation (undecodable transport encoding, missing required
// field, wrong type) returns a PaymentError with reason malformed_payload.
func DecodePayment(encoded string) (PaymentPayload, error) {
	var payload PaymentPayload

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return payload, NewPaymentError(ReasonMalformedPayload, "payment header is not valid base64", err)
	}

	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, NewPaymentError(ReasonMalformedPayload, "payment header is not valid JSON", err)
	}

	if err := validatePayload(payload); err != nil {
		return payload, err
	}

	return payload, nil
}

// validatePayload enforces the known-required fields of the payload shape.
func validatePayload(p PaymentPayload) error {
	switch {
	case p.X402Version <= 0:
		return NewPaymentError(ReasonMalformedPayload, "payload missing x402Version", nil)
	case p.PaymentID == "":
		return NewPaymentError(ReasonMalformedPayload, "payload missing paymentId", nil)
	case p.Scheme == "":
		return NewPaymentError(ReasonMalformedPayload, "payload missing scheme", nil)
	case p.Network == "":
		return NewPaymentError(ReasonMalformedPayload, "payload missing network", nil)
	case p.Transaction == "":
		return NewPaymentError(ReasonMalformedPayload, "payload missing transaction", nil)
	}
	return nil
}

// EncodeReceipt converts a SettlementReceipt to a base64-encoded JSON string
// for the X-Payment-Response header.
func EncodeReceipt(receipt SettlementReceipt) (string, error) {
	data, err := json.Marshal(receipt)
	if err != nil {
		return "", fmt.Errorf("failed to marshal receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeReceipt converts a base64-encoded JSON string to a SettlementReceipt.
func DecodeReceipt(encoded string) (SettlementReceipt, error) {
	var receipt SettlementReceipt

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return receipt, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(data, &receipt); err != nil {
		return receipt, fmt.Errorf("failed to unmarshal receipt: %w", err)
	}

	return receipt, nil
}

// EncodeRequirements converts a PaymentRequired body to base64-encoded JSON.
// Used where the 402 challenge must travel in a header rather than a body.
func EncodeRequirements(required PaymentRequired) (string, error) {
	data, err := json.Marshal(required)
	if err != nil {
		return "", fmt.Errorf("failed to marshal requirements: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DecodeRequirements converts base64-encoded JSON to a PaymentRequired body.
func DecodeRequirements(encoded string) (PaymentRequired, error) {
	var required PaymentRequired

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return required, fmt.Errorf("failed to decode base64: %w", err)
	}

	if err := json.Unmarshal(data, &required); err != nil {
		return required, fmt.Errorf("failed to unmarshal requirements: %w", err)
	}

	return required, nil
}
