package solana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSenderClient_SendTransaction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("swqos_only") != "true" {
			t.Errorf("expected swqos_only=true, got %q", r.URL.RawQuery)
		}
		if r.URL.Query().Get("api-key") != "k1" {
			t.Errorf("expected api-key=k1, got %q", r.URL.RawQuery)
		}
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
			return
		}
		cfg := req.Params[1].(map[string]interface{})
		if cfg["skipPreflight"] != true || cfg["maxRetries"] != float64(0) {
			t.Errorf("unexpected send config %v", cfg)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "relay-sig"})
	}))
	defer server.Close()

	s := NewSenderClient(SenderConfig{Endpoint: server.URL, APIKey: "k1", SwqosOnly: true, MinTipSOL: 0.000005}, nil)
	sig, err := s.SendTransaction(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "relay-sig" {
		t.Errorf("expected relay-sig, got %s", sig)
	}
}

func TestSenderClient_SendTransaction_ServerError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewSenderClient(SenderConfig{Endpoint: server.URL, MinTipSOL: 0.001, MaxRetries: 2, RetryDelay: time.Millisecond}, nil)
	if _, err := s.SendTransaction(context.Background(), []byte{1}); !IsRetryable(err) {
		t.Errorf("expected transient error, got %v", err)
	}
	if n := requests.Load(); n != 3 {
		t.Errorf("expected 3 requests, got %d", n)
	}
}

func TestSenderClient_SendTransaction_RetriesRateLimit(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": "relay-sig"})
	}))
	defer server.Close()

	s := NewSenderClient(SenderConfig{Endpoint: server.URL, MinTipSOL: 0.001, RetryDelay: time.Millisecond}, nil)
	sig, err := s.SendTransaction(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig != "relay-sig" {
		t.Errorf("expected relay-sig, got %s", sig)
	}
	if n := requests.Load(); n != 2 {
		t.Errorf("expected 2 requests, got %d", n)
	}
}

func TestSenderClient_SendTransaction_TerminalNotRetried(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := NewSenderClient(SenderConfig{Endpoint: server.URL, MinTipSOL: 0.001, RetryDelay: time.Millisecond}, nil)
	if _, err := s.SendTransaction(context.Background(), []byte{1}); err == nil || IsRetryable(err) {
		t.Errorf("expected terminal error, got %v", err)
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("expected 1 request, got %d", n)
	}
}

func TestSenderClient_TipLamports(t *testing.T) {
	var fetches atomic.Int32
	floor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte(`[{"time":"2024-01-01T00:00:00Z","landed_tips_75th_percentile":0.0025,"landed_tips_50th_percentile":0.001}]`))
	}))
	defer floor.Close()

	tests := []struct {
		name    string
		cfg     SenderConfig
		expect  uint64
		fetched bool
	}{
		{"static", SenderConfig{MinTipSOL: 0.001}, 1_000_000, false},
		{"dynamic above min", SenderConfig{MinTipSOL: 0.001, DynamicTips: true}, 2_500_000, true},
		{"dynamic below min", SenderConfig{MinTipSOL: 0.003, DynamicTips: true}, 3_000_000, true},
		{"swqos ignores dynamic", SenderConfig{MinTipSOL: 0.000005, DynamicTips: true, SwqosOnly: true}, 5_000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := fetches.Load()
			tt.cfg.TipFloorURL = floor.URL
			s := NewSenderClient(tt.cfg, nil)
			if got := s.TipLamports(context.Background()); got != tt.expect {
				t.Errorf("expected %d lamports, got %d", tt.expect, got)
			}
			if (fetches.Load() > before) != tt.fetched {
				t.Errorf("floor fetched = %v, want %v", fetches.Load() > before, tt.fetched)
			}
		})
	}
}

func TestSenderClient_TipFloorFailureFallsBack(t *testing.T) {
	floor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"unexpected":true}`))
	}))
	defer floor.Close()

	s := NewSenderClient(SenderConfig{MinTipSOL: 0.001, DynamicTips: true, TipFloorURL: floor.URL}, nil)
	if got := s.TipLamports(context.Background()); got != 1_000_000 {
		t.Errorf("expected fallback to minimum, got %d", got)
	}
}

func TestSenderClient_TipAccount(t *testing.T) {
	s := NewSenderClient(SenderConfig{}, nil)
	acct := s.TipAccount()
	found := false
	for _, a := range SenderTipAccounts {
		if a == acct {
			found = true
		}
	}
	if !found {
		t.Errorf("tip account %s not in list", acct)
	}
}
