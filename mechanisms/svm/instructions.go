package svm

import (
	"encoding/binary"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
)

// Compute budget instruction discriminators.
const (
	computeUnitLimitDiscriminator = 2
	computeUnitPriceDiscriminator = 3
)

// transferCheckedDiscriminator is the SPL Token instruction index for
// TransferChecked. Data layout: [0]=12, [1..8]=amount u64 LE, [9]=decimals.
const transferCheckedDiscriminator = 12

// createIdempotentDiscriminator is the Associated Token Account program
// instruction index for CreateIdempotent.
const createIdempotentDiscriminator = 1

// DeriveAssociatedTokenAddress derives the ATA for an owner and mint.
func DeriveAssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive ata: %w", err)
	}
	return ata, nil
}

// BuildSetComputeUnitLimitInstruction creates a SetComputeUnitLimit
// instruction. Data layout: [2, units u32 LE].
func BuildSetComputeUnitLimitInstruction(units uint32) solana.Instruction {
	data := make([]byte, 5)
	data[0] = computeUnitLimitDiscriminator
	binary.LittleEndian.PutUint32(data[1:], units)

	return solana.NewInstruction(solana.ComputeBudget, solana.AccountMetaSlice{}, data)
}

// BuildSetComputeUnitPriceInstruction creates a SetComputeUnitPrice
// instruction. Data layout: [3, microlamports u64 LE].
func BuildSetComputeUnitPriceInstruction(microlamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = computeUnitPriceDiscriminator
	binary.LittleEndian.PutUint64(data[1:], microlamports)

	return solana.NewInstruction(solana.ComputeBudget, solana.AccountMetaSlice{}, data)
}

// BuildCreateIdempotentATAInstruction creates an idempotent ATA creation
// instruction. Unlike Create (index 0), CreateIdempotent (index 1) succeeds
// when the account already exists, so the client can include it without
// knowing whether the recipient holds the asset yet. The payer sponsors the
// rent-exempt balance when creation actually happens.
func BuildCreateIdempotentATAInstruction(payer, owner, mint solana.PublicKey) (solana.Instruction, error) {
	ata, err := DeriveAssociatedTokenAddress(owner, mint)
	if err != nil {
		return nil, err
	}

	accounts := solana.AccountMetaSlice{
		{PublicKey: payer, IsSigner: true, IsWritable: true},
		{PublicKey: ata, IsSigner: false, IsWritable: true},
		{PublicKey: owner, IsSigner: false, IsWritable: false},
		{PublicKey: mint, IsSigner: false, IsWritable: false},
		{PublicKey: solana.SystemProgramID, IsSigner: false, IsWritable: false},
		{PublicKey: solana.TokenProgramID, IsSigner: false, IsWritable: false},
	}

	data := []byte{createIdempotentDiscriminator}

	return solana.NewInstruction(solana.SPLAssociatedTokenAccountProgramID, accounts, data), nil
}

// BuildTransferCheckedInstruction creates an SPL Token TransferChecked
// instruction from source to destination token accounts.
func BuildTransferCheckedInstruction(
	source, mint, destination, owner solana.PublicKey,
	amount uint64,
	decimals uint8,
) solana.Instruction {
	return token.NewTransferCheckedInstructionBuilder().
		SetAmount(amount).
		SetDecimals(decimals).
		SetSourceAccount(source).
		SetMintAccount(mint).
		SetDestinationAccount(destination).
		SetOwnerAccount(owner).
		Build()
}
