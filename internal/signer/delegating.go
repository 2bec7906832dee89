package signer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ApprovalRequest asks an external agent to sign Payload, a base64 wire
// transaction with empty signature slots.
type ApprovalRequest struct {
	ID          string `json:"id"`
	PublicKey   string `json:"public_key"`
	Payload     string `json:"payload"`
	Description string `json:"description,omitempty"`
}

// ApprovalResponse is the agent's answer. SignedTx is base64.
type ApprovalResponse struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
	SignedTx string `json:"signed_tx,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// ApprovalAgent obtains signatures from outside the process.
type ApprovalAgent interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (*ApprovalResponse, error)
	Ready() bool
}

// DelegatingSigner hands every transaction to an ApprovalAgent and waits
// for the signed result.
type DelegatingSigner struct {
	pub     solanago.PublicKey
	agent   ApprovalAgent
	timeout time.Duration
	logger  *logrus.Logger
}

// NewDelegatingSigner creates a signer for wallet backed by agent.
func NewDelegatingSigner(wallet string, agent ApprovalAgent, timeout time.Duration, logger *logrus.Logger) (*DelegatingSigner, error) {
	pub, err := solanago.PublicKeyFromBase58(wallet)
	if err != nil {
		return nil, fmt.Errorf("parse wallet public key: %w", err)
	}
	if agent == nil {
		return nil, errors.New("approval agent is required")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DelegatingSigner{pub: pub, agent: agent, timeout: timeout, logger: logger}, nil
}

func (s *DelegatingSigner) PublicKey() string { return s.pub.String() }

func (s *DelegatingSigner) IsReady() bool { return s.agent.Ready() }

func (s *DelegatingSigner) Sign(ctx context.Context, instructions []solanago.Instruction, blockhash string) ([]byte, error) {
	tx, err := compile(instructions, blockhash, s.pub)
	if err != nil {
		return nil, err
	}
	raw, err := unsignedBytes(tx)
	if err != nil {
		return nil, fmt.Errorf("serialize unsigned transaction: %w", err)
	}
	return s.SignRaw(ctx, raw)
}

func (s *DelegatingSigner) SignRaw(ctx context.Context, raw []byte) ([]byte, error) {
	tx, err := solanago.TransactionFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}

	req := ApprovalRequest{
		ID:          uuid.NewString(),
		PublicKey:   s.pub.String(),
		Payload:     base64.StdEncoding.EncodeToString(raw),
		Description: description(ctx),
	}
	log := s.logger.WithField("approval_id", req.ID)
	log.WithField("description", req.Description).Info("awaiting signature approval")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.agent.RequestApproval(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request approval %s: %w", req.ID, err)
	}
	if !resp.Approved {
		log.WithField("reason", resp.Reason).Warn("signature declined")
		return nil, fmt.Errorf("%w: %s", ErrDeclined, resp.Reason)
	}

	signed, err := base64.StdEncoding.DecodeString(resp.SignedTx)
	if err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	if err := s.verify(signed, msg); err != nil {
		return nil, err
	}
	log.Info("signature approved")
	return signed, nil
}

// verify checks that signed carries the requested message and a valid
// wallet signature.
func (s *DelegatingSigner) verify(signed, msg []byte) error {
	tx, err := solanago.TransactionFromBytes(signed)
	if err != nil {
		return fmt.Errorf("decode signed transaction: %w", err)
	}
	got, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("serialize signed message: %w", err)
	}
	if !bytes.Equal(got, msg) {
		return errors.New("signed transaction does not match the approval request")
	}
	if err := tx.VerifySignatures(); err != nil {
		return fmt.Errorf("verify signatures: %w", err)
	}
	return nil
}
