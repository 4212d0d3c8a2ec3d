package svm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	solana "github.com/gagliardetto/solana-go"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// ExactSvmFacilitator verifies and settles exact-scheme payments on Solana
// networks. Verification is purely structural and never touches the ledger;
// settlement countersigns as fee payer, submits, and awaits finality.
type ExactSvmFacilitator struct {
	signer Signer

	mu      sync.Mutex
	ledgers map[x402.Network]Ledger
}

// FacilitatorOption configures an ExactSvmFacilitator.
type FacilitatorOption func(*ExactSvmFacilitator)

// WithLedger installs a ledger for a network, overriding the default RPC
// client. Used for custom RPC endpoints and tests.
func WithLedger(network x402.Network, ledger Ledger) FacilitatorOption {
	return func(f *ExactSvmFacilitator) {
		f.ledgers[network] = ledger
	}
}

// NewExactSvmFacilitator creates a facilitator mechanism. The signer is the
// fee payer advertised to clients through requirement extras; it may be nil
// when clients fund their own fees.
func NewExactSvmFacilitator(signer Signer, opts ...FacilitatorOption) *ExactSvmFacilitator {
	f := &ExactSvmFacilitator{
		signer:  signer,
		ledgers: make(map[x402.Network]Ledger),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Scheme returns the scheme identifier.
func (f *ExactSvmFacilitator) Scheme() string {
	return x402.SchemeExact
}

// CaipFamily returns the CAIP family pattern this mechanism supports.
func (f *ExactSvmFacilitator) CaipFamily() string {
	return CaipFamilySolana
}

// GetExtra advertises the fee payer clients must set on their transactions.
func (f *ExactSvmFacilitator) GetExtra(network x402.Network) map[string]interface{} {
	if f.signer == nil {
		return nil
	}
	return map[string]interface{}{
		"feePayer": f.signer.Address().String(),
	}
}

// GetSigners returns the facilitator's signer addresses for a network.
func (f *ExactSvmFacilitator) GetSigners(network x402.Network) []string {
	if f.signer == nil {
		return nil
	}
	return []string{f.signer.Address().String()}
}

func (f *ExactSvmFacilitator) ledgerFor(network x402.Network) (Ledger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ledger, ok := f.ledgers[network]; ok {
		return ledger, nil
	}
	ledger, err := NewRPCLedgerForNetwork(string(network))
	if err != nil {
		return nil, err
	}
	f.ledgers[network] = ledger
	return ledger, nil
}

// Verify performs the structural checks on the payment transaction: it
// decodes, contains a single TransferChecked moving at least the required
// amount of the required asset to the recipient's token account, and carries
// a valid payer signature.
func (f *ExactSvmFacilitator) Verify(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.VerifyResponse, error) {
	invalid := func(reason string) *x402.VerifyResponse {
		return &x402.VerifyResponse{IsValid: false, InvalidReason: reason}
	}

	tx, err := DecodeTransaction(payload.Transaction)
	if err != nil {
		return invalid(x402.ReasonMalformedPayload), nil
	}

	transfer, err := ExtractTransfer(tx)
	if err != nil {
		return invalid(x402.ReasonInsufficientPayment), nil
	}

	required, err := strconv.ParseUint(requirements.MaxAmountRequired, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid required amount %q: %w", requirements.MaxAmountRequired, err)
	}
	// Amount is a floor: overpayment settles.
	if transfer.Amount < required {
		return invalid(x402.ReasonInsufficientPayment), nil
	}

	mint, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return nil, fmt.Errorf("invalid asset address %q: %w", requirements.Asset, err)
	}
	if !transfer.Mint.Equals(mint) {
		return invalid(x402.ReasonInsufficientPayment), nil
	}

	payTo, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return nil, fmt.Errorf("invalid payTo address %q: %w", requirements.PayTo, err)
	}
	expectedDest, err := DeriveAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return nil, err
	}
	if !transfer.Destination.Equals(expectedDest) {
		return invalid(x402.ReasonInsufficientPayment), nil
	}

	if err := VerifyPayerSignature(tx, transfer.Owner); err != nil {
		return invalid(x402.ReasonInvalidSignature), nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: transfer.Owner.String()}, nil
}

// Settle countersigns the transaction as fee payer, submits it, and awaits
// finality. Timeouts and ledger rejections return a failed receipt without an
// error; only infrastructure failures return an error.
func (f *ExactSvmFacilitator) Settle(ctx context.Context, payload x402.PaymentPayload, requirements x402.PaymentRequirements) (*x402.SettlementReceipt, error) {
	failed := func(reason, txRef string) *x402.SettlementReceipt {
		return &x402.SettlementReceipt{
			Success:              false,
			TransactionReference: txRef,
			NetworkID:            payload.Network,
			ErrorReason:          reason,
		}
	}

	tx, err := DecodeTransaction(payload.Transaction)
	if err != nil {
		return failed(x402.ReasonMalformedPayload, ""), x402.NewPaymentError(x402.ReasonMalformedPayload, "transaction does not decode", err)
	}

	var payer string
	if transfer, err := ExtractTransfer(tx); err == nil {
		payer = transfer.Owner.String()
	}

	if err := f.countersign(tx); err != nil {
		return failed(x402.ReasonSettlementRejected, ""), err
	}

	ledger, err := f.ledgerFor(payload.Network)
	if err != nil {
		return failed(x402.ReasonUnsupportedScheme, ""), err
	}

	sig, err := ledger.Submit(ctx, tx)
	if err != nil {
		if errors.Is(err, ErrTransactionRejected) {
			return failed(x402.ReasonSettlementRejected, ""), nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return failed(x402.ReasonSettlementTimeout, ""), nil
		}
		return failed(x402.ReasonLedgerUnavailable, ""), x402.NewPaymentError(x402.ReasonLedgerUnavailable, "transaction submission failed", err)
	}

	if err := ledger.AwaitFinality(ctx, sig); err != nil {
		switch {
		case errors.Is(err, ErrTransactionRejected):
			return failed(x402.ReasonSettlementRejected, sig.String()), nil
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			// The transaction may still land after the deadline; the
			// reconciler picks these up later.
			return failed(x402.ReasonSettlementTimeout, sig.String()), nil
		default:
			return failed(x402.ReasonLedgerUnavailable, sig.String()), x402.NewPaymentError(x402.ReasonLedgerUnavailable, "finality polling failed", err)
		}
	}

	return &x402.SettlementReceipt{
		Success:              true,
		TransactionReference: sig.String(),
		NetworkID:            payload.Network,
		ConfirmedAt:          time.Now(),
		Payer:                payer,
	}, nil
}

// countersign adds the fee payer signature when this facilitator's signer is
// the transaction's fee payer and the slot is still empty.
func (f *ExactSvmFacilitator) countersign(tx *solana.Transaction) error {
	if f.signer == nil {
		return nil
	}
	if len(tx.Message.AccountKeys) == 0 {
		return fmt.Errorf("transaction has no account keys")
	}

	feePayer := tx.Message.AccountKeys[0]
	if !feePayer.Equals(f.signer.Address()) {
		return nil
	}
	if len(tx.Signatures) > 0 && !tx.Signatures[0].IsZero() {
		return nil
	}
	return f.signer.SignTransaction(tx)
}

var _ x402.SchemeNetworkFacilitator = (*ExactSvmFacilitator)(nil)
