package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-foundation/x402-facilitator"
)

func testEvent(paymentID string) x402.SettlementEvent {
	return x402.SettlementEvent{
		PaymentID: paymentID,
		Resource:  "/premium",
		Receipt: x402.SettlementReceipt{
			Success:              true,
			TransactionReference: "tx-1",
			NetworkID:            x402.Network("solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"),
			ConfirmedAt:          time.Now(),
		},
		EmittedAt: time.Now(),
	}
}

func TestWebhookDelivery(t *testing.T) {
	var mu sync.Mutex
	var received []x402.SettlementEvent

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var event x402.SettlementEvent
		require.NoError(t, json.NewDecoder(r.Body).Decode(&event))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		mu.Lock()
		received = append(received, event)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, 16, nil)
	sink.Notify(testEvent("pay-1"))
	sink.Notify(testEvent("pay-2"))
	sink.Close()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, "pay-1", received[0].PaymentID)
	assert.Equal(t, "pay-2", received[1].PaymentID)
}

func TestWebhookNeverBlocks(t *testing.T) {
	blocked := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-blocked
	}))
	defer server.Close()
	defer close(blocked)

	sink := NewWebhookSink(server.URL, 1, nil)

	// Flood well past the buffer; Notify must return immediately every time.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			sink.Notify(testEvent("pay"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow webhook")
	}
}

func TestWebhookFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	sink := NewWebhookSink(server.URL, 16, nil)
	sink.Notify(testEvent("pay-1"))
	sink.Close()
}
