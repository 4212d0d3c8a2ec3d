package svm

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// ErrTransactionRejected is returned when the ledger definitively rejected a
// submitted transaction. Retrying the same transaction cannot succeed.
var ErrTransactionRejected = fmt.Errorf("transaction rejected by ledger")

// Ledger abstracts the Solana RPC operations the mechanism needs, so tests
// can run against a fake ledger.
type Ledger interface {
	// LatestBlockhash returns a recent blockhash for transaction building.
	LatestBlockhash(ctx context.Context) (solana.Hash, error)

	// Submit sends a fully signed transaction and returns its signature.
	Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)

	// AwaitFinality blocks until the transaction is finalized, the ledger
	// rejects it (ErrTransactionRejected), or ctx expires.
	AwaitFinality(ctx context.Context, sig solana.Signature) error
}

// RPCLedger is a Ledger backed by a Solana JSON-RPC endpoint.
type RPCLedger struct {
	client       *rpc.Client
	pollInterval time.Duration
}

// NewRPCLedger creates a ledger client for the given RPC URL.
func NewRPCLedger(rpcURL string) *RPCLedger {
	return &RPCLedger{
		client:       rpc.New(rpcURL),
		pollInterval: time.Second,
	}
}

// NewRPCLedgerForNetwork creates a ledger client using the network's default
// RPC endpoint.
func NewRPCLedgerForNetwork(network string) (*RPCLedger, error) {
	config, err := GetNetworkConfig(network)
	if err != nil {
		return nil, err
	}
	return NewRPCLedger(config.RPCURL), nil
}

// LatestBlockhash returns a finalized recent blockhash.
func (l *RPCLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := l.client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	return result.Value.Blockhash, nil
}

// Submit sends the transaction with preflight checks enabled. A preflight
// failure means the ledger would reject the transaction, so it surfaces as
// ErrTransactionRejected.
func (l *RPCLedger) Submit(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: %v", ErrTransactionRejected, err)
	}
	return sig, nil
}

// AwaitFinality polls signature status until finalization.
func (l *RPCLedger) AwaitFinality(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		result, err := l.client.GetSignatureStatuses(ctx, true, sig)
		if err != nil {
			return fmt.Errorf("get signature status: %w", err)
		}

		if len(result.Value) > 0 && result.Value[0] != nil {
			status := result.Value[0]
			if status.Err != nil {
				return fmt.Errorf("%w: %v", ErrTransactionRejected, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SignatureStatus returns a one-shot finality verdict for a transaction
// reference: finalized, rejected, or still pending. Used by reconciliation,
// which cannot afford AwaitFinality's blocking poll.
func (l *RPCLedger) SignatureStatus(ctx context.Context, txRef string) (finalized, rejected bool, err error) {
	sig, err := solana.SignatureFromBase58(txRef)
	if err != nil {
		return false, false, fmt.Errorf("invalid transaction reference: %w", err)
	}

	result, err := l.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return false, false, fmt.Errorf("get signature status: %w", err)
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return false, false, nil
	}

	status := result.Value[0]
	if status.Err != nil {
		return false, true, nil
	}
	return status.ConfirmationStatus == rpc.ConfirmationStatusFinalized, false, nil
}

var _ Ledger = (*RPCLedger)(nil)
