package svm

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
)

// EncodeTransaction serializes a transaction to base64.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	txBytes, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("marshal transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(txBytes), nil
}

// DecodeTransaction deserializes a base64-encoded transaction.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	txBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode transaction base64: %w", err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(txBytes))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// TokenTransfer is the single TransferChecked instruction extracted from a
// payment transaction.
type TokenTransfer struct {
	Source      solana.PublicKey
	Mint        solana.PublicKey
	Destination solana.PublicKey
	Owner       solana.PublicKey
	Amount      uint64
	Decimals    uint8
}

// ExtractTransfer walks the transaction's instructions and returns its
// TransferChecked transfer. A payment transaction may contain compute budget
// instructions, one idempotent ATA creation, and exactly one TransferChecked;
// any other instruction rejects the transaction.
func ExtractTransfer(tx *solana.Transaction) (*TokenTransfer, error) {
	msg := &tx.Message
	var transfer *TokenTransfer

	for i, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= len(msg.AccountKeys) {
			return nil, fmt.Errorf("instruction %d: program index out of range", i)
		}
		program := msg.AccountKeys[ix.ProgramIDIndex]

		switch {
		case program.Equals(solana.ComputeBudget):
			if len(ix.Data) == 0 {
				return nil, fmt.Errorf("instruction %d: empty compute budget data", i)
			}
			if ix.Data[0] != computeUnitLimitDiscriminator && ix.Data[0] != computeUnitPriceDiscriminator {
				return nil, fmt.Errorf("instruction %d: unexpected compute budget instruction %d", i, ix.Data[0])
			}

		case program.Equals(solana.SPLAssociatedTokenAccountProgramID):
			if len(ix.Data) != 1 || ix.Data[0] != createIdempotentDiscriminator {
				return nil, fmt.Errorf("instruction %d: only idempotent ata creation is allowed", i)
			}

		case program.Equals(solana.TokenProgramID) || program.Equals(solana.Token2022ProgramID):
			if transfer != nil {
				return nil, fmt.Errorf("instruction %d: multiple token transfers", i)
			}
			parsed, err := parseTransferChecked(msg, ix)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", i, err)
			}
			transfer = parsed

		default:
			return nil, fmt.Errorf("instruction %d: unexpected program %s", i, program)
		}
	}

	if transfer == nil {
		return nil, fmt.Errorf("transaction contains no token transfer")
	}
	return transfer, nil
}

func parseTransferChecked(msg *solana.Message, ix solana.CompiledInstruction) (*TokenTransfer, error) {
	if len(ix.Data) < 10 || ix.Data[0] != transferCheckedDiscriminator {
		return nil, fmt.Errorf("not a transferChecked instruction")
	}
	if len(ix.Accounts) < 4 {
		return nil, fmt.Errorf("transferChecked needs 4 accounts, got %d", len(ix.Accounts))
	}

	resolve := func(idx uint16) (solana.PublicKey, error) {
		if int(idx) >= len(msg.AccountKeys) {
			return solana.PublicKey{}, fmt.Errorf("account index %d out of range", idx)
		}
		return msg.AccountKeys[idx], nil
	}

	source, err := resolve(ix.Accounts[0])
	if err != nil {
		return nil, err
	}
	mint, err := resolve(ix.Accounts[1])
	if err != nil {
		return nil, err
	}
	destination, err := resolve(ix.Accounts[2])
	if err != nil {
		return nil, err
	}
	owner, err := resolve(ix.Accounts[3])
	if err != nil {
		return nil, err
	}

	return &TokenTransfer{
		Source:      source,
		Mint:        mint,
		Destination: destination,
		Owner:       owner,
		Amount:      binary.LittleEndian.Uint64(ix.Data[1:9]),
		Decimals:    ix.Data[9],
	}, nil
}

// VerifyPayerSignature checks that the transaction carries a valid ed25519
// signature for payer over the message bytes. The transaction may be
// partially signed; only the payer's slot must be populated.
func VerifyPayerSignature(tx *solana.Transaction, payer solana.PublicKey) error {
	msg := &tx.Message
	numSigners := int(msg.Header.NumRequiredSignatures)

	idx := -1
	for i := 0; i < numSigners && i < len(msg.AccountKeys); i++ {
		if msg.AccountKeys[i].Equals(payer) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%s is not a required signer", payer)
	}
	if idx >= len(tx.Signatures) {
		return fmt.Errorf("missing signature slot for %s", payer)
	}

	sig := tx.Signatures[idx]
	if sig.IsZero() {
		return fmt.Errorf("signature for %s is empty", payer)
	}

	msgBytes, err := msg.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(payer[:]), msgBytes, sig[:]) {
		return fmt.Errorf("signature for %s does not verify", payer)
	}
	return nil
}
