package svm

import (
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

// buildPaymentTx assembles the canonical payment transaction: compute budget,
// idempotent ATA creation, and one TransferChecked, signed by the client with
// the fee payer slot left open.
func buildPaymentTx(t *testing.T, client solana.PrivateKey, feePayer, payTo, mint solana.PublicKey, amount uint64) *solana.Transaction {
	t.Helper()

	sourceATA, err := DeriveAssociatedTokenAddress(client.PublicKey(), mint)
	require.NoError(t, err)
	destATA, err := DeriveAssociatedTokenAddress(payTo, mint)
	require.NoError(t, err)
	createATA, err := BuildCreateIdempotentATAInstruction(feePayer, payTo, mint)
	require.NoError(t, err)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			BuildSetComputeUnitLimitInstruction(DefaultComputeUnits),
			BuildSetComputeUnitPriceInstruction(DefaultComputeUnitPrice),
			createATA,
			BuildTransferCheckedInstruction(sourceATA, mint, destATA, client.PublicKey(), amount, USDCDecimals),
		},
		solana.Hash{},
		solana.TransactionPayer(feePayer),
	)
	require.NoError(t, err)

	require.NoError(t, NewKeySignerFromKey(client).SignTransaction(tx))
	return tx
}

func TestTransactionRoundTrip(t *testing.T) {
	client := newTestKey(t)
	feePayer := newTestKey(t).PublicKey()
	payTo := newTestKey(t).PublicKey()
	mint := solana.MustPublicKeyFromBase58(USDCDevnetAddress)

	tx := buildPaymentTx(t, client, feePayer, payTo, mint, 100_000)

	encoded, err := EncodeTransaction(tx)
	require.NoError(t, err)

	decoded, err := DecodeTransaction(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(tx.Message.Instructions), len(decoded.Message.Instructions))
	assert.Equal(t, tx.Signatures, decoded.Signatures)
}

func TestDecodeTransactionMalformed(t *testing.T) {
	_, err := DecodeTransaction("!!!not-base64!!!")
	assert.Error(t, err)

	_, err = DecodeTransaction("bm90IGEgdHJhbnNhY3Rpb24=")
	assert.Error(t, err)
}

func TestExtractTransfer(t *testing.T) {
	client := newTestKey(t)
	feePayer := newTestKey(t).PublicKey()
	payTo := newTestKey(t).PublicKey()
	mint := solana.MustPublicKeyFromBase58(USDCDevnetAddress)

	tx := buildPaymentTx(t, client, feePayer, payTo, mint, 250_000)

	transfer, err := ExtractTransfer(tx)
	require.NoError(t, err)

	expectedDest, err := DeriveAssociatedTokenAddress(payTo, mint)
	require.NoError(t, err)

	assert.Equal(t, uint64(250_000), transfer.Amount)
	assert.Equal(t, uint8(USDCDecimals), transfer.Decimals)
	assert.True(t, transfer.Mint.Equals(mint))
	assert.True(t, transfer.Destination.Equals(expectedDest))
	assert.True(t, transfer.Owner.Equals(client.PublicKey()))
}

func TestExtractTransferRejectsForeignInstruction(t *testing.T) {
	client := newTestKey(t)
	feePayer := newTestKey(t)
	payTo := newTestKey(t).PublicKey()

	// A bare SOL transfer is not a payment transaction.
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(1000, client.PublicKey(), payTo).Build(),
		},
		solana.Hash{},
		solana.TransactionPayer(feePayer.PublicKey()),
	)
	require.NoError(t, err)

	_, err = ExtractTransfer(tx)
	assert.Error(t, err)
}

func TestExtractTransferRejectsMissingTransfer(t *testing.T) {
	feePayer := newTestKey(t)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			BuildSetComputeUnitLimitInstruction(DefaultComputeUnits),
		},
		solana.Hash{},
		solana.TransactionPayer(feePayer.PublicKey()),
	)
	require.NoError(t, err)

	_, err = ExtractTransfer(tx)
	assert.Error(t, err)
}

func TestVerifyPayerSignature(t *testing.T) {
	client := newTestKey(t)
	feePayer := newTestKey(t).PublicKey()
	payTo := newTestKey(t).PublicKey()
	mint := solana.MustPublicKeyFromBase58(USDCDevnetAddress)

	tx := buildPaymentTx(t, client, feePayer, payTo, mint, 100_000)

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, VerifyPayerSignature(tx, client.PublicKey()))
	})

	t.Run("fee payer slot still empty", func(t *testing.T) {
		assert.Error(t, VerifyPayerSignature(tx, feePayer))
	})

	t.Run("not a signer", func(t *testing.T) {
		assert.Error(t, VerifyPayerSignature(tx, payTo))
	})

	t.Run("corrupted signature", func(t *testing.T) {
		tampered := buildPaymentTx(t, client, feePayer, payTo, mint, 100_000)
		for i := range tampered.Signatures {
			tampered.Signatures[i][0] ^= 0xFF
		}
		assert.Error(t, VerifyPayerSignature(tampered, client.PublicKey()))
	})
}
