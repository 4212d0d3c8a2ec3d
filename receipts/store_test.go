package receipts

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/x402-foundation/x402-facilitator"
)

const testNetwork = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	return store
}

func successReceipt(txRef string) x402.SettlementReceipt {
	return x402.SettlementReceipt{
		Success:              true,
		TransactionReference: txRef,
		NetworkID:            x402.Network(testNetwork),
		ConfirmedAt:          time.Now(),
		Payer:                "payer-address",
	}
}

func timeoutReceipt(txRef string) x402.SettlementReceipt {
	return x402.SettlementReceipt{
		Success:              false,
		TransactionReference: txRef,
		NetworkID:            x402.Network(testNetwork),
		ErrorReason:          x402.ReasonSettlementTimeout,
	}
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.RecordSettlement(ctx, "pay-1", "/premium", successReceipt("tx-1")))

	record, err := store.Get(ctx, "pay-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.True(t, record.Success)
	assert.Equal(t, "tx-1", record.TransactionReference)
	assert.Equal(t, "/premium", record.Resource)
	assert.Equal(t, testNetwork, record.NetworkID)

	missing, err := store.Get(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRecordUpsertsByPaymentID(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.RecordSettlement(ctx, "pay-1", "/premium", timeoutReceipt("tx-1")))
	require.NoError(t, store.RecordSettlement(ctx, "pay-1", "/premium", successReceipt("tx-1")))

	record, err := store.Get(ctx, "pay-1")
	require.NoError(t, err)
	assert.True(t, record.Success)
	assert.Empty(t, record.ErrorReason)
}

func TestListUnresolved(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.RecordSettlement(ctx, "timed-out", "/premium", timeoutReceipt("tx-1")))
	require.NoError(t, store.RecordSettlement(ctx, "settled", "/premium", successReceipt("tx-2")))
	// Timed out before submission: nothing on the ledger to recheck.
	require.NoError(t, store.RecordSettlement(ctx, "never-submitted", "/premium", timeoutReceipt("")))

	unresolved, err := store.ListUnresolved(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, "timed-out", unresolved[0].PaymentID)
}

func TestMarkResolved(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.RecordSettlement(ctx, "pay-1", "/premium", timeoutReceipt("tx-1")))
	require.NoError(t, store.MarkResolved(ctx, "pay-1", time.Now()))

	record, err := store.Get(ctx, "pay-1")
	require.NoError(t, err)
	assert.True(t, record.Success)
	assert.Empty(t, record.ErrorReason)
	assert.False(t, record.ConfirmedAt.IsZero())
}

func TestMarkAbandoned(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.RecordSettlement(ctx, "pay-1", "/premium", timeoutReceipt("tx-1")))
	require.NoError(t, store.MarkAbandoned(ctx, "pay-1"))

	record, err := store.Get(ctx, "pay-1")
	require.NoError(t, err)
	assert.False(t, record.Success)
	assert.Equal(t, x402.ReasonSettlementRejected, record.ErrorReason)

	unresolved, err := store.ListUnresolved(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, unresolved)
}
