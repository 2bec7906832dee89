package execution

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/order"
	"solana-launch-sniper/internal/signer"
	"solana-launch-sniper/internal/solana"
	"solana-launch-sniper/internal/solana/stub"
)

func newSigner(t *testing.T) *signer.KeypairSigner {
	t.Helper()
	k, err := solanago.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("NewRandomPrivateKey: %v", err)
	}
	return signer.NewKeypairSigner(k)
}

func testOrder(t *testing.T, sg signer.Signer) *order.Order {
	t.Helper()
	from := solanago.MustPublicKeyFromBase58(sg.PublicKey())
	to := solanago.MustPublicKeyFromBase58("4ACfpUFoaSD9bfPdeu6DBt89gB6ENTeHBXCAi87NhDEE")
	return &order.Order{
		Side:         domain.SideBuy,
		Mint:         "mint",
		Instructions: []solanago.Instruction{system.NewTransferInstruction(1, from, to).Build()},
		TokenAmount:  1,
		SolAmount:    1,
	}
}

func fastService(gw solana.Gateway) *Service {
	return New(Options{
		Gateway:        gw,
		ConfirmTimeout: 200 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})
}

func blockhashNotFound() error {
	return &solana.TerminalRPCError{Op: "sendTransaction", Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}
}

func TestExecute_Confirmed(t *testing.T) {
	gw := stub.NewGateway()
	sg := newSigner(t)

	res, err := fastService(gw).Execute(context.Background(), testOrder(t, sg), sg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Attempts != 1 || res.Route != RouteRPC || res.DryRun {
		t.Errorf("unexpected result %+v", res)
	}
	if gw.SentCount() != 1 {
		t.Fatalf("expected 1 submission, got %d", gw.SentCount())
	}
	sig, _ := stub.FirstSignature(gw.Sent[0])
	if res.Signature != sig {
		t.Errorf("signature = %s, want %s", res.Signature, sig)
	}
}

func TestExecute_BlockhashRefreshedOnce(t *testing.T) {
	gw := stub.NewGateway()
	gw.SendErrs = []error{blockhashNotFound()}
	sg := newSigner(t)

	res, err := fastService(gw).Execute(context.Background(), testOrder(t, sg), sg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", res.Attempts)
	}
	if n := gw.CallCount("getLatestBlockhash"); n != 2 {
		t.Errorf("expected 2 blockhash fetches, got %d", n)
	}
}

func TestExecute_BlockhashExpiredTwice(t *testing.T) {
	gw := stub.NewGateway()
	gw.SendErrs = []error{blockhashNotFound(), blockhashNotFound(), nil}
	sg := newSigner(t)

	_, err := fastService(gw).Execute(context.Background(), testOrder(t, sg), sg)
	var of *OrderFailedError
	if !errors.As(err, &of) {
		t.Fatalf("expected OrderFailedError, got %v", err)
	}
	if of.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", of.Attempts)
	}
	if !solana.IsBlockhashNotFound(err) {
		t.Errorf("expected cause to be kept, got %v", err)
	}
	if n := gw.CallCount("sendTransaction"); n != 2 {
		t.Errorf("expected exactly 2 sends, got %d", n)
	}
}

func TestExecute_TerminalErrorNotRetried(t *testing.T) {
	gw := stub.NewGateway()
	gw.SendErrs = []error{&solana.TerminalRPCError{Op: "sendTransaction", Code: -32002, Message: "insufficient funds for fee"}}
	sg := newSigner(t)

	_, err := fastService(gw).Execute(context.Background(), testOrder(t, sg), sg)
	var of *OrderFailedError
	if !errors.As(err, &of) || of.Attempts != 1 {
		t.Fatalf("expected OrderFailedError after 1 attempt, got %v", err)
	}
	if n := gw.CallCount("getLatestBlockhash"); n != 1 {
		t.Errorf("expected 1 blockhash fetch, got %d", n)
	}
}

func TestExecute_ConfirmTimeoutDoesNotResubmit(t *testing.T) {
	gw := stub.NewGateway()
	gw.AutoConfirm = false
	gw.BlockHeight = 10
	sg := newSigner(t)

	svc := New(Options{
		Gateway:        gw,
		ConfirmTimeout: 30 * time.Millisecond,
		ExpiryWait:     50 * time.Millisecond,
		PollInterval:   5 * time.Millisecond,
	})
	_, err := svc.Execute(context.Background(), testOrder(t, sg), sg)
	var of *OrderFailedError
	if !errors.As(err, &of) {
		t.Fatalf("expected OrderFailedError, got %v", err)
	}
	if of.Attempts != 1 || !errors.Is(err, ErrUnconfirmed) {
		t.Errorf("expected unconfirmed after 1 attempt, got %d: %v", of.Attempts, err)
	}
	if errors.Is(err, errExpired) {
		t.Errorf("blockhash still valid, must not read as expired: %v", err)
	}
	if gw.SentCount() != 1 {
		t.Errorf("expected 1 submission, got %d", gw.SentCount())
	}
	if n := gw.CallCount("getLatestBlockhash"); n != 1 {
		t.Errorf("expected 1 blockhash fetch, got %d", n)
	}
}

// lateGateway confirms each submission after a delay.
type lateGateway struct {
	*stub.Gateway
	delay time.Duration
}

func (g *lateGateway) SendTransaction(ctx context.Context, raw []byte, opts solana.SendOptions) (string, error) {
	sig, err := g.Gateway.SendTransaction(ctx, raw, opts)
	if err == nil {
		time.AfterFunc(g.delay, func() {
			g.SetStatus(sig, &solana.SignatureStatus{Slot: 7, ConfirmationStatus: solana.CommitmentConfirmed})
		})
	}
	return sig, err
}

func TestExecute_SlowConfirmationKeepsPolling(t *testing.T) {
	gw := &lateGateway{Gateway: stub.NewGateway(), delay: 80 * time.Millisecond}
	gw.AutoConfirm = false
	sg := newSigner(t)

	svc := New(Options{
		Gateway:        gw,
		ConfirmTimeout: 20 * time.Millisecond,
		ExpiryWait:     5 * time.Second,
		PollInterval:   5 * time.Millisecond,
	})
	res, err := svc.Execute(context.Background(), testOrder(t, sg), sg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Attempts != 1 || res.Slot != 7 {
		t.Errorf("expected slot 7 on attempt 1, got %+v", res)
	}
	if gw.SentCount() != 1 {
		t.Errorf("expected 1 submission, got %d", gw.SentCount())
	}
}

// expiringGateway leaves the first submission unseen until the block height
// passes its blockhash, then confirms the next one.
type expiringGateway struct {
	*stub.Gateway
	height atomic.Uint64
	sends  atomic.Int32
}

func (g *expiringGateway) GetBlockHeight(context.Context) (uint64, error) {
	return g.height.Load(), nil
}

func (g *expiringGateway) SendTransaction(ctx context.Context, raw []byte, opts solana.SendOptions) (string, error) {
	sig, err := g.Gateway.SendTransaction(ctx, raw, opts)
	if err != nil {
		return sig, err
	}
	if g.sends.Add(1) == 1 {
		time.AfterFunc(60*time.Millisecond, func() {
			g.height.Store(g.Blockhash.LastValidBlockHeight + 1)
		})
	} else {
		g.SetStatus(sig, &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed})
	}
	return sig, nil
}

func TestExecute_ResubmitsOnlyAfterHeightPassed(t *testing.T) {
	gw := &expiringGateway{Gateway: stub.NewGateway()}
	gw.AutoConfirm = false
	gw.height.Store(10)
	sg := newSigner(t)

	svc := New(Options{
		Gateway:        gw,
		ConfirmTimeout: 20 * time.Millisecond,
		ExpiryWait:     5 * time.Second,
		PollInterval:   5 * time.Millisecond,
	})
	res, err := svc.Execute(context.Background(), testOrder(t, sg), sg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", res.Attempts)
	}
	if gw.SentCount() != 2 {
		t.Errorf("expected 2 submissions, got %d", gw.SentCount())
	}
	if n := gw.CallCount("getLatestBlockhash"); n != 2 {
		t.Errorf("expected 2 blockhash fetches, got %d", n)
	}
}

func TestExecute_BlockHeightPassed(t *testing.T) {
	gw := stub.NewGateway()
	gw.AutoConfirm = false
	gw.BlockHeight = gw.Blockhash.LastValidBlockHeight + 1
	sg := newSigner(t)

	svc := New(Options{Gateway: gw, ConfirmTimeout: 10 * time.Second, PollInterval: 5 * time.Millisecond})
	start := time.Now()
	_, err := svc.Execute(context.Background(), testOrder(t, sg), sg)
	if !errors.Is(err, errExpired) {
		t.Fatalf("expected expiry, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("expiry should be detected from block height, not the timeout")
	}
}

// failingGateway marks every submitted transaction as failed on chain.
type failingGateway struct {
	*stub.Gateway
}

func (g *failingGateway) SendTransaction(ctx context.Context, raw []byte, opts solana.SendOptions) (string, error) {
	sig, err := g.Gateway.SendTransaction(ctx, raw, opts)
	if err == nil {
		g.SetStatus(sig, &solana.SignatureStatus{
			ConfirmationStatus: solana.CommitmentConfirmed,
			Err:                map[string]any{"InstructionError": []any{2, map[string]any{"Custom": 6002}}},
		})
	}
	return sig, err
}

func TestExecute_OnChainFailure(t *testing.T) {
	gw := &failingGateway{Gateway: stub.NewGateway()}
	gw.AutoConfirm = false
	sg := newSigner(t)

	_, err := fastService(gw).Execute(context.Background(), testOrder(t, sg), sg)
	var txErr *TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("expected TransactionError, got %v", err)
	}
	var of *OrderFailedError
	if !errors.As(err, &of) || of.Attempts != 1 {
		t.Errorf("on-chain failure must not be retried: %v", err)
	}
}

func TestExecute_DryRun(t *testing.T) {
	gw := stub.NewGateway()
	sg := newSigner(t)
	svc := New(Options{Gateway: gw, DryRun: true})

	res, err := svc.Execute(context.Background(), testOrder(t, sg), sg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.DryRun || res.Route != RouteDryRun || !strings.HasPrefix(res.Signature, "dry-run-") {
		t.Errorf("unexpected result %+v", res)
	}
	if gw.CallCount("sendTransaction") != 0 {
		t.Error("dry run must not submit")
	}
}

type fakeRelay struct {
	mu     sync.Mutex
	min    uint64
	sent   int
	status func(sig string)
}

func (r *fakeRelay) MinTipLamports() uint64 { return r.min }

func (r *fakeRelay) SendTransaction(_ context.Context, raw []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent++
	sig, err := stub.FirstSignature(raw)
	if err != nil {
		return "", err
	}
	r.status(sig)
	return sig, nil
}

func TestExecute_Relay(t *testing.T) {
	gw := stub.NewGateway()
	relay := &fakeRelay{min: 1_000_000, status: func(sig string) {
		gw.SetStatus(sig, &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentFinalized})
	}}
	sg := newSigner(t)
	svc := New(Options{Gateway: gw, Relay: relay, PollInterval: 5 * time.Millisecond})

	o := testOrder(t, sg)
	o.TipLamports = 1_000_000
	res, err := svc.Execute(context.Background(), o, sg)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Route != RouteRelay || relay.sent != 1 {
		t.Errorf("expected relay submission, got %+v (sent=%d)", res, relay.sent)
	}
	if gw.CallCount("sendTransaction") != 0 {
		t.Error("relay route must not use RPC submission")
	}
}

func TestExecute_RelayTipTooLow(t *testing.T) {
	gw := stub.NewGateway()
	relay := &fakeRelay{min: 1_000_000, status: func(string) {}}
	sg := newSigner(t)
	svc := New(Options{Gateway: gw, Relay: relay})

	o := testOrder(t, sg)
	o.TipLamports = 5_000
	_, err := svc.Execute(context.Background(), o, sg)
	if !errors.Is(err, ErrTipTooLow) {
		t.Fatalf("expected ErrTipTooLow, got %v", err)
	}
	if relay.sent != 0 || gw.CallCount("getLatestBlockhash") != 0 {
		t.Error("no network call expected before the tip check")
	}
}

type unreadySigner struct{ signer.Signer }

func (unreadySigner) IsReady() bool { return false }

func TestExecute_SignerNotReady(t *testing.T) {
	gw := stub.NewGateway()
	sg := newSigner(t)
	_, err := fastService(gw).Execute(context.Background(), testOrder(t, sg), unreadySigner{sg})
	if !errors.Is(err, ErrSignerNotReady) {
		t.Fatalf("expected ErrSignerNotReady, got %v", err)
	}
}

func TestExecute_ContextCancelled(t *testing.T) {
	gw := stub.NewGateway()
	gw.AutoConfirm = false
	sg := newSigner(t)
	svc := New(Options{Gateway: gw, ConfirmTimeout: 10 * time.Second, PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)
	_, err := svc.Execute(ctx, testOrder(t, sg), sg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if gw.SentCount() != 1 {
		t.Errorf("cancellation must not trigger a retry, sent %d", gw.SentCount())
	}
}
