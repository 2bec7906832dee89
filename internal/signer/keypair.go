package signer

import (
	"context"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
)

// KeypairSigner signs with an in-process private key.
type KeypairSigner struct {
	key solanago.PrivateKey
	pub solanago.PublicKey
}

// NewKeypairSigner wraps key.
func NewKeypairSigner(key solanago.PrivateKey) *KeypairSigner {
	return &KeypairSigner{key: key, pub: key.PublicKey()}
}

// NewKeypairSignerFromBase58 parses a base58 secret key.
func NewKeypairSignerFromBase58(secret string) (*KeypairSigner, error) {
	key, err := solanago.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return NewKeypairSigner(key), nil
}

// NewKeypairSignerFromFile reads a solana-keygen JSON file.
func NewKeypairSignerFromFile(path string) (*KeypairSigner, error) {
	key, err := solanago.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair %s: %w", path, err)
	}
	return NewKeypairSigner(key), nil
}

func (s *KeypairSigner) PublicKey() string { return s.pub.String() }

func (s *KeypairSigner) IsReady() bool { return true }

func (s *KeypairSigner) Sign(_ context.Context, instructions []solanago.Instruction, blockhash string) ([]byte, error) {
	tx, err := compile(instructions, blockhash, s.pub)
	if err != nil {
		return nil, err
	}
	return s.signTx(tx)
}

func (s *KeypairSigner) SignRaw(_ context.Context, raw []byte) ([]byte, error) {
	tx, err := solanago.TransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return s.signTx(tx)
}

func (s *KeypairSigner) signTx(tx *solanago.Transaction) ([]byte, error) {
	if _, err := tx.Sign(func(k solanago.PublicKey) *solanago.PrivateKey {
		if k.Equals(s.pub) {
			return &s.key
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	out, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}
	return out, nil
}
