package solana

import (
	"context"
	"errors"
	"testing"
)

// fakeGateway answers GetBlockHeight with height or err and counts calls.
type fakeGateway struct {
	height uint64
	err    error
	calls  int
}

func (f *fakeGateway) GetAccountInfo(context.Context, string) (*AccountInfo, error) { return nil, f.err }
func (f *fakeGateway) GetTransaction(context.Context, string) (*Transaction, error) { return nil, f.err }
func (f *fakeGateway) GetLatestBlockhash(context.Context) (*Blockhash, error)        { return nil, f.err }
func (f *fakeGateway) SendTransaction(context.Context, []byte, SendOptions) (string, error) {
	return "", f.err
}
func (f *fakeGateway) GetSignatureStatuses(context.Context, ...string) ([]*SignatureStatus, error) {
	return nil, f.err
}
func (f *fakeGateway) GetBlockHeight(context.Context) (uint64, error) {
	f.calls++
	return f.height, f.err
}

func TestFailoverClient_RotatesOnTransient(t *testing.T) {
	down := &fakeGateway{err: &TransientNetworkError{Op: "getBlockHeight", StatusCode: 503, Err: errors.New("down")}}
	up := &fakeGateway{height: 77}

	f, err := NewFailoverClient([]Gateway{down, up}, nil, nil)
	if err != nil {
		t.Fatalf("NewFailoverClient: %v", err)
	}

	h, err := f.GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if h != 77 {
		t.Errorf("expected 77, got %d", h)
	}

	// The healthy endpoint is now preferred.
	if _, err := f.GetBlockHeight(context.Background()); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if down.calls != 1 {
		t.Errorf("failing endpoint should be skipped after rotation, got %d calls", down.calls)
	}
}

func TestFailoverClient_TerminalStops(t *testing.T) {
	bad := &fakeGateway{err: &TerminalRPCError{Op: "getBlockHeight", Code: -32602, Message: "invalid params"}}
	spare := &fakeGateway{height: 1}

	f, _ := NewFailoverClient([]Gateway{bad, spare}, []string{"a", "b"}, nil)
	_, err := f.GetBlockHeight(context.Background())

	var terminal *TerminalRPCError
	if !errors.As(err, &terminal) {
		t.Fatalf("expected terminal error, got %v", err)
	}
	if spare.calls != 0 {
		t.Error("terminal error must not fail over")
	}
}

func TestFailoverClient_AllDown(t *testing.T) {
	a := &fakeGateway{err: &TransientNetworkError{Op: "x", Err: errors.New("a")}}
	b := &fakeGateway{err: &TransientNetworkError{Op: "x", Err: errors.New("b")}}

	f, _ := NewFailoverClient([]Gateway{a, b}, nil, nil)
	_, err := f.GetBlockHeight(context.Background())
	if !IsRetryable(err) {
		t.Errorf("expected transient error, got %v", err)
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("expected one call each, got %d/%d", a.calls, b.calls)
	}
}

func TestNewFailoverClient_Empty(t *testing.T) {
	if _, err := NewFailoverClient(nil, nil, nil); err == nil {
		t.Error("expected error for no gateways")
	}
}
