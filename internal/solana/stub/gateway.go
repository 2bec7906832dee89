// Package stub provides an in-memory solana.Gateway for tests and dry runs.
package stub

import (
	"context"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"

	"solana-launch-sniper/internal/solana"
)

var _ solana.Gateway = (*Gateway)(nil)

// Gateway implements solana.Gateway from in-memory maps.
type Gateway struct {
	mu sync.Mutex

	Accounts     map[string]*solana.AccountInfo
	Transactions map[string]*solana.Transaction
	Statuses     map[string]*solana.SignatureStatus
	Blockhash    solana.Blockhash
	BlockHeight  uint64

	// NotVisible holds how many more GetTransaction calls report a
	// signature as not yet visible.
	NotVisible map[string]int

	// SendErrs are returned by successive SendTransaction calls before
	// falling back to success.
	SendErrs []error

	// AutoConfirm marks every sent transaction confirmed.
	AutoConfirm bool

	Sent  [][]byte
	Calls map[string]int
}

// NewGateway creates an empty stub gateway.
func NewGateway() *Gateway {
	return &Gateway{
		Accounts:     make(map[string]*solana.AccountInfo),
		Transactions: make(map[string]*solana.Transaction),
		Statuses:     make(map[string]*solana.SignatureStatus),
		NotVisible:   make(map[string]int),
		Calls:        make(map[string]int),
		Blockhash:    solana.Blockhash{Hash: "11111111111111111111111111111111", LastValidBlockHeight: 1_000},
		BlockHeight:  1,
		AutoConfirm:  true,
	}
}

// SetAccount stores raw account data under pubkey.
func (g *Gateway) SetAccount(pubkey string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Accounts[pubkey] = &solana.AccountInfo{Lamports: 1, Data: append([]byte(nil), data...)}
}

// AddTransaction adds a transaction to the stub store.
func (g *Gateway) AddTransaction(tx *solana.Transaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Transactions[tx.Signature] = tx
}

// SetStatus overrides the status of a signature.
func (g *Gateway) SetStatus(signature string, st *solana.SignatureStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Statuses[signature] = st
}

// SentCount returns how many transactions were submitted.
func (g *Gateway) SentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Sent)
}

// CallCount returns how many times method was called.
func (g *Gateway) CallCount(method string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Calls[method]
}

func (g *Gateway) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["getAccountInfo"]++

	info, ok := g.Accounts[pubkey]
	if !ok {
		return nil, nil
	}
	cp := *info
	cp.Data = append([]byte(nil), info.Data...)
	return &cp, nil
}

func (g *Gateway) GetTransaction(_ context.Context, signature string) (*solana.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["getTransaction"]++

	if n := g.NotVisible[signature]; n > 0 {
		g.NotVisible[signature] = n - 1
		return nil, &solana.TransientNetworkError{Op: "getTransaction", Err: solana.ErrNotVisible}
	}
	tx, ok := g.Transactions[signature]
	if !ok {
		return nil, &solana.TransientNetworkError{Op: "getTransaction", Err: solana.ErrNotVisible}
	}
	return tx, nil
}

func (g *Gateway) GetLatestBlockhash(context.Context) (*solana.Blockhash, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["getLatestBlockhash"]++

	bh := g.Blockhash
	return &bh, nil
}

func (g *Gateway) GetBlockHeight(context.Context) (uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["getBlockHeight"]++
	return g.BlockHeight, nil
}

func (g *Gateway) SendTransaction(_ context.Context, raw []byte, _ solana.SendOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["sendTransaction"]++

	if len(g.SendErrs) > 0 {
		err := g.SendErrs[0]
		g.SendErrs = g.SendErrs[1:]
		if err != nil {
			return "", err
		}
	}

	sig, err := FirstSignature(raw)
	if err != nil {
		return "", &solana.TerminalRPCError{Op: "sendTransaction", Code: -32602, Message: err.Error()}
	}
	g.Sent = append(g.Sent, append([]byte(nil), raw...))
	if g.AutoConfirm {
		if _, exists := g.Statuses[sig]; !exists {
			g.Statuses[sig] = &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed}
		}
	}
	return sig, nil
}

func (g *Gateway) GetSignatureStatuses(_ context.Context, signatures ...string) ([]*solana.SignatureStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls["getSignatureStatuses"]++

	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := g.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// FirstSignature reads the fee payer signature from a wire transaction.
func FirstSignature(raw []byte) (string, error) {
	if len(raw) < 1+64 {
		return "", fmt.Errorf("transaction too short: %d bytes", len(raw))
	}
	if raw[0] == 0 || raw[0]&0x80 != 0 {
		return "", fmt.Errorf("unexpected signature count byte %d", raw[0])
	}
	return base58.Encode(raw[1:65]), nil
}
