package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer answers every request with handler(req) as the JSON-RPC result.
func rpcServer(t *testing.T, handler func(req rpcRequest) (result interface{}, rpcErr *rpcError)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		result, rpcErr := handler(req)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func fastClient(url string, opts ...ClientOption) *HTTPClient {
	opts = append([]ClientOption{WithRetryDelay(time.Millisecond), WithMaxDelay(5 * time.Millisecond)}, opts...)
	return NewHTTPClient(url, opts...)
}

func TestHTTPClient_GetTransaction(t *testing.T) {
	wire := []byte{1, 2, 3, 4, 5}

	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		if req.Method != "getTransaction" {
			t.Errorf("expected method getTransaction, got %s", req.Method)
		}
		cfg := req.Params[1].(map[string]interface{})
		if cfg["encoding"] != "base64" {
			t.Errorf("expected base64 encoding, got %v", cfg["encoding"])
		}
		return map[string]interface{}{
			"slot":        int64(123456),
			"blockTime":   int64(1700000000),
			"transaction": []string{base64.StdEncoding.EncodeToString(wire), "base64"},
			"meta": map[string]interface{}{
				"err":         nil,
				"logMessages": []string{"Program log: Instruction: Create"},
				"loadedAddresses": map[string]interface{}{
					"writable": []string{"w1"},
					"readonly": []string{"r1", "r2"},
				},
				"innerInstructions": []interface{}{
					map[string]interface{}{
						"index": 2,
						"instructions": []interface{}{
							map[string]interface{}{"programIdIndex": 4, "accounts": []int{0, 1}, "data": "3Bxs4h24hBtQy9rw"},
						},
					},
				},
			},
		}, nil
	})
	defer server.Close()

	tx, err := fastClient(server.URL).GetTransaction(context.Background(), "sig1")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx.Slot != 123456 || tx.BlockTime != 1700000000 {
		t.Errorf("unexpected slot/blockTime: %d/%d", tx.Slot, tx.BlockTime)
	}
	if string(tx.Raw) != string(wire) {
		t.Errorf("raw bytes mismatch: %v", tx.Raw)
	}
	if tx.Meta == nil {
		t.Fatal("expected meta")
	}
	if len(tx.Meta.LoadedAddresses.Readonly) != 2 || tx.Meta.LoadedAddresses.Writable[0] != "w1" {
		t.Errorf("unexpected loaded addresses: %+v", tx.Meta.LoadedAddresses)
	}
	if len(tx.Meta.InnerInstructions) != 1 || tx.Meta.InnerInstructions[0].Index != 2 {
		t.Fatalf("unexpected inner instructions: %+v", tx.Meta.InnerInstructions)
	}
	inner := tx.Meta.InnerInstructions[0].Instructions[0]
	if inner.ProgramIDIndex != 4 || len(inner.Accounts) != 2 {
		t.Errorf("unexpected inner instruction: %+v", inner)
	}
}

func TestHTTPClient_GetTransaction_NotVisible(t *testing.T) {
	var calls atomic.Int32
	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		calls.Add(1)
		return nil, nil
	})
	defer server.Close()

	_, err := fastClient(server.URL).GetTransaction(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for invisible transaction")
	}
	if !errors.Is(err, ErrNotVisible) {
		t.Errorf("expected ErrNotVisible, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("not-visible should classify as transient")
	}
	if got := calls.Load(); got != DefaultMaxRetries+1 {
		t.Errorf("expected %d attempts, got %d", DefaultMaxRetries+1, got)
	}
}

func TestHTTPClient_GetTransaction_BecomesVisible(t *testing.T) {
	var calls atomic.Int32
	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		if calls.Add(1) < 3 {
			return nil, nil
		}
		return map[string]interface{}{
			"slot":        int64(7),
			"transaction": []string{base64.StdEncoding.EncodeToString([]byte{9}), "base64"},
		}, nil
	})
	defer server.Close()

	tx, err := fastClient(server.URL).GetTransaction(context.Background(), "late")
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if tx.Slot != 7 {
		t.Errorf("expected slot 7, got %d", tx.Slot)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		switch n {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
			return
		case 2:
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 42})
	}))
	defer server.Close()

	height, err := fastClient(server.URL).GetBlockHeight(context.Background())
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}
	if height != 42 {
		t.Errorf("expected 42, got %d", height)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		retryable bool
	}{
		{"invalid params", -32602, false},
		{"preflight failure", -32002, false},
		{"signature verification", -32003, false},
		{"node unhealthy", -32005, true},
		{"block not available", -32004, true},
		{"min context slot", -32016, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
				calls.Add(1)
				return nil, &rpcError{Code: tt.code, Message: tt.name}
			})
			defer server.Close()

			_, err := fastClient(server.URL).GetBlockHeight(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v (%v)", IsRetryable(err), tt.retryable, err)
			}

			wantCalls := int32(1)
			if tt.retryable {
				wantCalls = DefaultMaxRetries + 1
			} else {
				var terminal *TerminalRPCError
				if !errors.As(err, &terminal) || terminal.Code != tt.code {
					t.Errorf("expected TerminalRPCError with code %d, got %v", tt.code, err)
				}
			}
			if calls.Load() != wantCalls {
				t.Errorf("expected %d calls, got %d", wantCalls, calls.Load())
			}
		})
	}
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	data := []byte("curve-bytes")
	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		if req.Method != "getAccountInfo" {
			t.Errorf("expected getAccountInfo, got %s", req.Method)
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": map[string]interface{}{
				"lamports":   1000,
				"owner":      "owner1",
				"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
				"executable": false,
				"rentEpoch":  5,
			},
		}, nil
	})
	defer server.Close()

	info, err := fastClient(server.URL).GetAccountInfo(context.Background(), "acct")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info.Lamports != 1000 || info.Owner != "owner1" {
		t.Errorf("unexpected info: %+v", info)
	}
	if string(info.Data) != string(data) {
		t.Errorf("expected decoded data, got %q", info.Data)
	}
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		return map[string]interface{}{"context": map[string]interface{}{"slot": 1}, "value": nil}, nil
	})
	defer server.Close()

	info, err := fastClient(server.URL).GetAccountInfo(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil, got %+v", info)
	}
}

func TestHTTPClient_GetLatestBlockhash(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		cfg := req.Params[0].(map[string]interface{})
		if cfg["commitment"] != CommitmentFinalized {
			t.Errorf("expected finalized commitment, got %v", cfg["commitment"])
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   map[string]interface{}{"blockhash": "hash1", "lastValidBlockHeight": 500},
		}, nil
	})
	defer server.Close()

	bh, err := fastClient(server.URL, WithCommitment(CommitmentFinalized)).GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if bh.Hash != "hash1" || bh.LastValidBlockHeight != 500 {
		t.Errorf("unexpected blockhash: %+v", bh)
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	raw := []byte{1, 1, 2, 3, 5, 8}
	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		if req.Method != "sendTransaction" {
			t.Errorf("expected sendTransaction, got %s", req.Method)
		}
		if req.Params[0] != base64.StdEncoding.EncodeToString(raw) {
			t.Errorf("unexpected payload %v", req.Params[0])
		}
		cfg := req.Params[1].(map[string]interface{})
		if cfg["skipPreflight"] != true {
			t.Errorf("expected skipPreflight=true, got %v", cfg["skipPreflight"])
		}
		if cfg["maxRetries"] != float64(0) {
			t.Errorf("expected maxRetries=0, got %v", cfg["maxRetries"])
		}
		return "sig-abc", nil
	})
	defer server.Close()

	zero := uint(0)
	sig, err := fastClient(server.URL).SendTransaction(context.Background(), raw, SendOptions{SkipPreflight: true, MaxRetries: &zero})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "sig-abc" {
		t.Errorf("expected sig-abc, got %s", sig)
	}
}

func TestHTTPClient_SendTransaction_BlockhashNotFound(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		return nil, &rpcError{
			Code:    -32002,
			Message: "Transaction simulation failed: Blockhash not found",
			Data:    json.RawMessage(`{"err":"BlockhashNotFound"}`),
		}
	})
	defer server.Close()

	_, err := fastClient(server.URL).SendTransaction(context.Background(), []byte{1}, SendOptions{})
	if !IsBlockhashNotFound(err) {
		t.Errorf("expected blockhash-not-found classification, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("blockhash rejection must be terminal")
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value": []interface{}{
				map[string]interface{}{"slot": 9, "confirmations": 1, "err": nil, "confirmationStatus": "confirmed"},
				nil,
			},
		}, nil
	})
	defer server.Close()

	statuses, err := fastClient(server.URL).GetSignatureStatuses(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if !statuses[0].Reached(CommitmentConfirmed) {
		t.Error("first status should be confirmed")
	}
	if statuses[0].Reached(CommitmentFinalized) {
		t.Error("confirmed must not satisfy finalized")
	}
	if statuses[1] != nil {
		t.Errorf("expected nil for unknown signature, got %+v", statuses[1])
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(200*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetBlockHeight(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestHTTPClient_RateLimit(t *testing.T) {
	var calls atomic.Int32
	server := rpcServer(t, func(req rpcRequest) (interface{}, *rpcError) {
		calls.Add(1)
		return 1, nil
	})
	defer server.Close()

	client := fastClient(server.URL, WithRateLimit(10))
	start := time.Now()
	for i := 0; i < 12; i++ {
		if _, err := client.GetBlockHeight(context.Background()); err != nil {
			t.Fatalf("GetBlockHeight: %v", err)
		}
	}
	// Burst of 10, then two more at 10/s.
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("rate limit not applied, 12 calls took %s", elapsed)
	}
}
