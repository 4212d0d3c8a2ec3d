package svm

import (
	"context"
	"fmt"
	"strconv"

	solana "github.com/gagliardetto/solana-go"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// ExactSvmClient builds payment payloads for the exact scheme: a partially
// signed transaction the facilitator completes with its fee payer signature.
type ExactSvmClient struct {
	signer Signer
	ledger Ledger
}

// ClientOption configures an ExactSvmClient.
type ClientOption func(*ExactSvmClient)

// WithClientLedger sets the ledger used for blockhash retrieval, overriding
// the network default.
func WithClientLedger(ledger Ledger) ClientOption {
	return func(c *ExactSvmClient) {
		c.ledger = ledger
	}
}

// NewExactSvmClient creates a payment client signing with the given signer.
func NewExactSvmClient(signer Signer, opts ...ClientOption) *ExactSvmClient {
	c := &ExactSvmClient{signer: signer}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildPayload constructs a payment payload satisfying the requirements. The
// transaction carries compute budget instructions, an idempotent ATA creation
// for the recipient, and one TransferChecked for the exact required amount,
// signed by the client with the fee payer slot left open.
func (c *ExactSvmClient) BuildPayload(ctx context.Context, requirements x402.PaymentRequirements) (x402.PaymentPayload, error) {
	var payload x402.PaymentPayload

	amount, err := strconv.ParseUint(requirements.MaxAmountRequired, 10, 64)
	if err != nil {
		return payload, fmt.Errorf("invalid amount %q: %w", requirements.MaxAmountRequired, err)
	}

	mint, err := solana.PublicKeyFromBase58(requirements.Asset)
	if err != nil {
		return payload, fmt.Errorf("invalid asset address: %w", err)
	}
	payTo, err := solana.PublicKeyFromBase58(requirements.PayTo)
	if err != nil {
		return payload, fmt.Errorf("invalid payTo address: %w", err)
	}

	// Without an advertised fee payer the client funds its own fees.
	feePayer := c.signer.Address()
	if addr, ok := requirements.Extra["feePayer"].(string); ok {
		feePayer, err = solana.PublicKeyFromBase58(addr)
		if err != nil {
			return payload, fmt.Errorf("invalid feePayer address: %w", err)
		}
	}

	decimals := uint8(USDCDecimals)
	if d, ok := requirements.Extra["decimals"].(float64); ok {
		decimals = uint8(d)
	}

	sourceATA, err := DeriveAssociatedTokenAddress(c.signer.Address(), mint)
	if err != nil {
		return payload, err
	}
	destATA, err := DeriveAssociatedTokenAddress(payTo, mint)
	if err != nil {
		return payload, err
	}

	createATA, err := BuildCreateIdempotentATAInstruction(feePayer, payTo, mint)
	if err != nil {
		return payload, err
	}

	instructions := []solana.Instruction{
		BuildSetComputeUnitLimitInstruction(DefaultComputeUnits),
		BuildSetComputeUnitPriceInstruction(DefaultComputeUnitPrice),
		createATA,
		BuildTransferCheckedInstruction(sourceATA, mint, destATA, c.signer.Address(), amount, decimals),
	}

	ledger := c.ledger
	if ledger == nil {
		ledger, err = NewRPCLedgerForNetwork(string(requirements.Network))
		if err != nil {
			return payload, err
		}
	}
	blockhash, err := ledger.LatestBlockhash(ctx)
	if err != nil {
		return payload, fmt.Errorf("get blockhash: %w", err)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(feePayer))
	if err != nil {
		return payload, fmt.Errorf("build transaction: %w", err)
	}

	if err := c.signer.SignTransaction(tx); err != nil {
		return payload, err
	}

	encoded, err := EncodeTransaction(tx)
	if err != nil {
		return payload, err
	}

	return x402.PaymentPayload{
		X402Version: x402.X402Version,
		PaymentID:   requirements.PaymentID,
		Scheme:      requirements.Scheme,
		Network:     requirements.Network,
		Transaction: encoded,
	}, nil
}
