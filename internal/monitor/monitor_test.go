package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"solana-launch-sniper/internal/solana"
)

// fakeWS hands out a caller-controlled notification channel.
type fakeWS struct {
	ch     chan solana.LogNotification
	filter solana.LogsFilter
	closed atomic.Bool
}

func newFakeWS() *fakeWS {
	return &fakeWS{ch: make(chan solana.LogNotification, 16)}
}

func (f *fakeWS) SubscribeLogs(_ context.Context, filter solana.LogsFilter) (<-chan solana.LogNotification, error) {
	f.filter = filter
	return f.ch, nil
}

func (f *fakeWS) Close() error {
	f.closed.Store(true)
	return nil
}

func fixedDialer(clients map[string]*fakeWS) Dialer {
	return func(_ context.Context, endpoint string) (solana.WSClient, error) {
		c, ok := clients[endpoint]
		if !ok {
			return nil, errors.New("unknown endpoint")
		}
		return c, nil
	}
}

func recv(t *testing.T, ch <-chan solana.LogNotification) solana.LogNotification {
	t.Helper()
	select {
	case n, ok := <-ch:
		if !ok {
			t.Fatal("output closed")
		}
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notification")
	}
	return solana.LogNotification{}
}

func expectNothing(t *testing.T, ch <-chan solana.LogNotification) {
	t.Helper()
	select {
	case n := <-ch:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{ProgramID: "p"}); err == nil {
		t.Error("expected error without endpoints")
	}
	if _, err := New(Options{Endpoints: []string{"ws://a"}}); err == nil {
		t.Error("expected error without program id")
	}
}

func TestMonitor_DedupAcrossEndpoints(t *testing.T) {
	a, b := newFakeWS(), newFakeWS()
	m, err := New(Options{
		Endpoints:  []string{"ws://a", "ws://b"},
		ProgramID:  "prog",
		Commitment: solana.CommitmentProcessed,
		Dial:       fixedDialer(map[string]*fakeWS{"ws://a": a, "ws://b": b}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := m.Run(ctx)

	a.ch <- solana.LogNotification{Signature: "sig1", Endpoint: "ws://a"}
	first := recv(t, out)
	b.ch <- solana.LogNotification{Signature: "sig1", Endpoint: "ws://b"}
	b.ch <- solana.LogNotification{Signature: "sig2"}

	if first.Signature != "sig1" || first.Endpoint != "ws://a" {
		t.Errorf("unexpected first arrival %+v", first)
	}
	second := recv(t, out)
	if second.Signature != "sig2" {
		t.Errorf("expected sig2, got %s", second.Signature)
	}
	if second.Endpoint != "ws://b" {
		t.Errorf("expected endpoint stamped, got %q", second.Endpoint)
	}
	expectNothing(t, out)

	if a.filter.Commitment != solana.CommitmentProcessed || len(a.filter.Mentions) != 1 || a.filter.Mentions[0] != "prog" {
		t.Errorf("unexpected filter %+v", a.filter)
	}
}

func TestMonitor_DropsFailedTransactions(t *testing.T) {
	a := newFakeWS()
	m, err := New(Options{
		Endpoints: []string{"ws://a"},
		ProgramID: "prog",
		Dial:      fixedDialer(map[string]*fakeWS{"ws://a": a}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := m.Run(ctx)

	a.ch <- solana.LogNotification{Signature: "bad", Err: map[string]any{"InstructionError": []any{0, "Custom"}}}
	a.ch <- solana.LogNotification{Signature: "good"}

	if got := recv(t, out); got.Signature != "good" {
		t.Errorf("expected good, got %s", got.Signature)
	}
	// A failed signature is not remembered, so a later success still passes.
	a.ch <- solana.LogNotification{Signature: "bad"}
	if got := recv(t, out); got.Signature != "bad" {
		t.Errorf("expected bad after success, got %s", got.Signature)
	}
}

func TestMonitor_RedialsClosedEndpoint(t *testing.T) {
	var (
		mu    sync.Mutex
		dials int
	)
	first, second := newFakeWS(), newFakeWS()
	close(first.ch)

	dial := func(_ context.Context, endpoint string) (solana.WSClient, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		switch dials {
		case 1:
			return first, nil
		case 2:
			return nil, errors.New("dial refused")
		default:
			return second, nil
		}
	}

	m, err := New(Options{
		Endpoints:      []string{"ws://a"},
		ProgramID:      "prog",
		Dial:           dial,
		RedialDelay:    10 * time.Millisecond,
		MaxRedialDelay: 40 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := m.Run(ctx)

	second.ch <- solana.LogNotification{Signature: "after-redial"}
	if got := recv(t, out); got.Signature != "after-redial" {
		t.Errorf("unexpected signature %s", got.Signature)
	}
	if !first.closed.Load() {
		t.Error("expected the dead client to be closed")
	}
	mu.Lock()
	if dials < 3 {
		t.Errorf("expected at least 3 dials, got %d", dials)
	}
	mu.Unlock()
}

func TestMonitor_StopClosesOutput(t *testing.T) {
	a := newFakeWS()
	m, err := New(Options{
		Endpoints: []string{"ws://a"},
		ProgramID: "prog",
		Dial:      fixedDialer(map[string]*fakeWS{"ws://a": a}),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	out := m.Run(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		m.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
	if _, ok := <-out; ok {
		t.Error("expected closed output")
	}
}

func TestDedup_Eviction(t *testing.T) {
	d, err := NewDedup(2)
	if err != nil {
		t.Fatalf("NewDedup: %v", err)
	}
	if d.Seen("a") || d.Seen("b") {
		t.Fatal("fresh signatures reported as seen")
	}
	if !d.Seen("a") {
		t.Error("expected a to be seen")
	}
	d.Seen("c") // evicts the oldest entry
	if d.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", d.Len())
	}
	if d.Seen("a") {
		t.Error("expected a to have been evicted")
	}
}
