// Package svm implements the exact payment scheme for SVM (Solana Virtual
// Machine) networks using SPL Token TransferChecked instructions. The
// facilitator side verifies and settles partially signed transactions; the
// client side builds them.
package svm

import (
	"fmt"

	"github.com/gagliardetto/solana-go/rpc"

	x402 "github.com/x402-foundation/x402-facilitator"
)

// CAIP-2 network identifiers. The reference is the first 32 characters of the
// network's genesis hash.
const (
	SolanaMainnetCAIP2 = "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp"
	SolanaDevnetCAIP2  = "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1"
	SolanaTestnetCAIP2 = "solana:4uhcVJyU9pJkvQyS88uRDiswHXSCkY3z"
)

// CaipFamilySolana matches any Solana network.
const CaipFamilySolana = "solana:*"

// USDC mint addresses.
const (
	USDCMainnetAddress = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDCDevnetAddress  = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"
)

// USDCDecimals is the number of base-unit decimals for USDC mints.
const USDCDecimals = 6

// DefaultComputeUnits is the compute unit limit requested for a payment
// transaction (compute budget + ATA creation + transfer).
const DefaultComputeUnits uint32 = 200_000

// DefaultComputeUnitPrice is the priority fee in microlamports per compute
// unit.
const DefaultComputeUnitPrice uint64 = 10_000

// NetworkConfig describes one supported Solana network.
type NetworkConfig struct {
	CAIP2    string
	RPCURL   string
	USDCMint string
}

var networkConfigs = map[string]NetworkConfig{
	SolanaMainnetCAIP2: {
		CAIP2:    SolanaMainnetCAIP2,
		RPCURL:   rpc.MainNetBeta_RPC,
		USDCMint: USDCMainnetAddress,
	},
	SolanaDevnetCAIP2: {
		CAIP2:    SolanaDevnetCAIP2,
		RPCURL:   rpc.DevNet_RPC,
		USDCMint: USDCDevnetAddress,
	},
	SolanaTestnetCAIP2: {
		CAIP2:  SolanaTestnetCAIP2,
		RPCURL: rpc.TestNet_RPC,
	},
}

// IsValidNetwork reports whether network is a supported Solana CAIP-2
// identifier.
func IsValidNetwork(network string) bool {
	_, ok := networkConfigs[network]
	return ok
}

// GetNetworkConfig returns the configuration for a Solana CAIP-2 network.
func GetNetworkConfig(network string) (NetworkConfig, error) {
	config, ok := networkConfigs[network]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("unsupported solana network: %s", network)
	}
	return config, nil
}

// SupportedNetworks returns all supported Solana networks.
func SupportedNetworks() []x402.Network {
	return []x402.Network{
		x402.Network(SolanaMainnetCAIP2),
		x402.Network(SolanaDevnetCAIP2),
		x402.Network(SolanaTestnetCAIP2),
	}
}
