package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-foundation/x402-facilitator"
)

func testPrice() x402.Price {
	return x402.Price{
		Asset:   "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU",
		Amount:  "100000",
		PayTo:   "recipient",
		Scheme:  x402.SchemeExact,
		Network: x402.Network("solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"),
	}
}

func TestChallengeIssue(t *testing.T) {
	store := NewChallengeStore(5 * time.Minute)

	requirements := store.Issue("/premium", testPrice(), 60, map[string]interface{}{"feePayer": "fp"})

	assert.NotEmpty(t, requirements.PaymentID)
	assert.Equal(t, "/premium", requirements.Resource)
	assert.Equal(t, "100000", requirements.MaxAmountRequired)
	assert.Equal(t, 60, requirements.MaxTimeoutSeconds)
	assert.True(t, requirements.ExpiresAt.After(time.Now()), "expiry must be after issuance")
	assert.Equal(t, "fp", requirements.Extra["feePayer"])

	stored, ok := store.Get(requirements.PaymentID)
	require.True(t, ok)
	assert.Equal(t, requirements.PaymentID, stored.PaymentID)
}

func TestChallengeIDsAreNeverReused(t *testing.T) {
	store := NewChallengeStore(5 * time.Minute)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		requirements := store.Issue("/premium", testPrice(), 60, nil)
		assert.False(t, seen[requirements.PaymentID], "paymentId reissued")
		seen[requirements.PaymentID] = true
	}
}

func TestChallengeExpiry(t *testing.T) {
	store := NewChallengeStore(10 * time.Millisecond)

	requirements := store.Issue("/premium", testPrice(), 60, nil)
	time.Sleep(20 * time.Millisecond)

	// An expired challenge is still returned so verification rejects it as
	// expired rather than unknown.
	stored, ok := store.Get(requirements.PaymentID)
	require.True(t, ok)
	assert.True(t, stored.ExpiresAt.Before(time.Now()))
}

func TestChallengeRemove(t *testing.T) {
	store := NewChallengeStore(5 * time.Minute)

	requirements := store.Issue("/premium", testPrice(), 60, nil)
	store.Remove(requirements.PaymentID)

	_, ok := store.Get(requirements.PaymentID)
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestChallengeGarbageCollection(t *testing.T) {
	store := NewChallengeStore(time.Millisecond)

	for i := 0; i < 10; i++ {
		store.Issue("/premium", testPrice(), 60, nil)
	}
	time.Sleep(5 * time.Millisecond)

	// Issue triggers collection of expired entries.
	store.Issue("/premium", testPrice(), 60, nil)
	assert.Equal(t, 1, store.Len())
}
