package x402

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload() PaymentPayload {
	return PaymentPayload{
		X402Version: X402Version,
		PaymentID:   "pay-123",
		Scheme:      SchemeExact,
		Network:     Network("solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"),
		Transaction: base64.StdEncoding.EncodeToString([]byte("signed-tx")),
	}
}

func TestPaymentRoundTrip(t *testing.T) {
	payload := validPayload()

	encoded, err := EncodePayment(payload)
	require.NoError(t, err)

	decoded, err := DecodePayment(encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestDecodePaymentMalformed(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"not base64", "!!!not-base64!!!"},
		{"not json", base64.StdEncoding.EncodeToString([]byte("not json"))},
		{"wrong field type", base64.StdEncoding.EncodeToString([]byte(`{"x402Version":"one"}`))},
		{"empty object", base64.StdEncoding.EncodeToString([]byte(`{}`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePayment(tt.encoded)
			require.Error(t, err)
			assert.Equal(t, ReasonMalformedPayload, ReasonOf(err))
		})
	}
}

func TestDecodePaymentMissingFields(t *testing.T) {
	base := validPayload()

	mutations := map[string]func(*PaymentPayload){
		"missing version":     func(p *PaymentPayload) { p.X402Version = 0 },
		"missing paymentId":   func(p *PaymentPayload) { p.PaymentID = "" },
		"missing scheme":      func(p *PaymentPayload) { p.Scheme = "" },
		"missing network":     func(p *PaymentPayload) { p.Network = "" },
		"missing transaction": func(p *PaymentPayload) { p.Transaction = "" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			payload := base
			mutate(&payload)

			encoded, err := EncodePayment(payload)
			require.NoError(t, err)

			_, err = DecodePayment(encoded)
			require.Error(t, err)

			var pe *PaymentError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, ReasonMalformedPayload, pe.Reason)
		})
	}
}

func TestDecodePaymentIgnoresUnknownFields(t *testing.T) {
	raw := `{"x402Version":1,"paymentId":"p1","scheme":"exact","network":"solana:x","transaction":"dHg=","futureField":true}`
	encoded := base64.StdEncoding.EncodeToString([]byte(raw))

	decoded, err := DecodePayment(encoded)
	require.NoError(t, err)
	assert.Equal(t, "p1", decoded.PaymentID)
}

func TestReceiptRoundTrip(t *testing.T) {
	receipt := SettlementReceipt{
		Success:              true,
		TransactionReference: "5Sig",
		NetworkID:            Network("solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"),
		ConfirmedAt:          time.Now().UTC().Truncate(time.Second),
		Payer:                "payer-address",
	}

	encoded, err := EncodeReceipt(receipt)
	require.NoError(t, err)

	decoded, err := DecodeReceipt(encoded)
	require.NoError(t, err)
	assert.Equal(t, receipt.TransactionReference, decoded.TransactionReference)
	assert.True(t, decoded.Success)
	assert.True(t, receipt.ConfirmedAt.Equal(decoded.ConfirmedAt))
}

func TestRequirementsRoundTrip(t *testing.T) {
	required := PaymentRequired{
		X402Version: X402Version,
		Error:       ReasonInsufficientPayment,
		Accepts: []PaymentRequirements{{
			Scheme:            SchemeExact,
			Network:           Network("solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"),
			Asset:             "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
			MaxAmountRequired: "100000",
			PayTo:             "recipient",
			Resource:          "/premium/data",
			MaxTimeoutSeconds: 60,
			PaymentID:         "pay-456",
			ExpiresAt:         time.Now().Add(5 * time.Minute),
		}},
	}

	encoded, err := EncodeRequirements(required)
	require.NoError(t, err)

	decoded, err := DecodeRequirements(encoded)
	require.NoError(t, err)
	require.Len(t, decoded.Accepts, 1)
	assert.Equal(t, "pay-456", decoded.Accepts[0].PaymentID)
	assert.Equal(t, "100000", decoded.Accepts[0].MaxAmountRequired)
}
