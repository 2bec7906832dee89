// Package signer produces signed transactions, either from a local keypair
// or by delegating to an external approval agent.
package signer

import (
	"context"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/sirupsen/logrus"

	"solana-launch-sniper/internal/config"
)

// ErrDeclined is returned when the approval agent refuses to sign.
var ErrDeclined = errors.New("signer declined")

// Signer signs transactions for the trading wallet.
type Signer interface {
	PublicKey() string
	// Sign compiles instructions against blockhash with the wallet as fee payer.
	Sign(ctx context.Context, instructions []solanago.Instruction, blockhash string) ([]byte, error)
	// SignRaw signs a serialized transaction.
	SignRaw(ctx context.Context, raw []byte) ([]byte, error)
	IsReady() bool
}

type descriptionKey struct{}

// WithDescription attaches a human-readable summary for approval prompts.
func WithDescription(ctx context.Context, desc string) context.Context {
	return context.WithValue(ctx, descriptionKey{}, desc)
}

func description(ctx context.Context) string {
	s, _ := ctx.Value(descriptionKey{}).(string)
	return s
}

// FromSettings builds the signer selected by st.
func FromSettings(st config.Settings, logger *logrus.Logger) (Signer, error) {
	switch st.SignerKind {
	case config.SignerKeypair:
		switch {
		case st.WalletPrivateKey != "":
			return NewKeypairSignerFromBase58(st.WalletPrivateKey)
		case st.WalletKeypairPath != "":
			return NewKeypairSignerFromFile(st.WalletKeypairPath)
		}
		return nil, errors.New("keypair signer needs wallet_private_key or wallet_keypair_path")
	case config.SignerDelegating:
		agent := NewHTTPApprovalAgent(st.ApprovalURL, nil)
		return NewDelegatingSigner(st.WalletPublicKey, agent, st.ApprovalTimeout(), logger)
	}
	return nil, fmt.Errorf("unknown signer %q", st.SignerKind)
}

// compile builds an unsigned transaction paid by payer.
func compile(instructions []solanago.Instruction, blockhash string, payer solanago.PublicKey) (*solanago.Transaction, error) {
	if len(instructions) == 0 {
		return nil, errors.New("no instructions to sign")
	}
	hash, err := solanago.HashFromBase58(blockhash)
	if err != nil {
		return nil, fmt.Errorf("parse blockhash: %w", err)
	}
	tx, err := solanago.NewTransaction(instructions, hash, solanago.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("compile transaction: %w", err)
	}
	return tx, nil
}

// unsignedBytes serializes tx with zeroed signature slots.
func unsignedBytes(tx *solanago.Transaction) ([]byte, error) {
	cp := *tx
	cp.Signatures = make([]solanago.Signature, tx.Message.Header.NumRequiredSignatures)
	return cp.MarshalBinary()
}
