package svm

import (
	"encoding/json"
	"fmt"
	"os"

	solana "github.com/gagliardetto/solana-go"
)

// Signer signs Solana transactions for one keypair. The facilitator uses it
// to countersign as fee payer; the client uses it to sign transfers.
type Signer interface {
	Address() solana.PublicKey

	// SignTransaction adds this key's signature to the transaction, leaving
	// other signature slots untouched.
	SignTransaction(tx *solana.Transaction) error
}

// KeySigner is a Signer holding an ed25519 private key in memory.
type KeySigner struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

// NewKeySigner creates a signer from a base58-encoded private key.
func NewKeySigner(privateKeyBase58 string) (*KeySigner, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeySignerFromKey(privateKey), nil
}

// NewKeySignerFromKey wraps an existing private key.
func NewKeySignerFromKey(key solana.PrivateKey) *KeySigner {
	return &KeySigner{privateKey: key, publicKey: key.PublicKey()}
}

// NewKeySignerFromKeygenFile loads a solana-keygen JSON file: an array of 64
// key bytes.
func NewKeySignerFromKeygenFile(path string) (*KeySigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keygen file: %w", err)
	}

	var keyBytes []byte
	if err := json.Unmarshal(data, &keyBytes); err != nil {
		return nil, fmt.Errorf("parse keygen file: %w", err)
	}
	if len(keyBytes) != 64 {
		return nil, fmt.Errorf("keygen file holds %d bytes, want 64", len(keyBytes))
	}

	return NewKeySignerFromKey(solana.PrivateKey(keyBytes)), nil
}

// Address returns the signer's public key.
func (s *KeySigner) Address() solana.PublicKey {
	return s.publicKey
}

// SignTransaction partially signs the transaction with this key.
func (s *KeySigner) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.publicKey) {
			return &s.privateKey
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sign transaction: %w", err)
	}
	return nil
}

var _ Signer = (*KeySigner)(nil)
