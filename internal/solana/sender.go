package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// DefaultTipFloorURL serves recent landed-tip percentiles.
const DefaultTipFloorURL = "https://bundles.jito.wtf/api/v1/bundles/tip_floor"

const lamportsPerSOL = 1_000_000_000

// SenderTipAccounts receive the relay tip. One is chosen per transaction.
var SenderTipAccounts = []string{
	"4ACfpUFoaSD9bfPdeu6DBt89gB6ENTeHBXCAi87NhDEE",
	"D2L6yPZ2FmmmTKPgzaMKdhu6EWZcTpLy1Vhx8uvZe7NZ",
	"9bnz4RShgq1hAnLnZbP8kbgBg1kEmcJBYQq3gQbmnSta",
	"5VY91ws6B2hMmBFRsXkoAAdsPHBJwRfBht4DXox3xkwn",
	"2nyhqdwKcJZR2vcqCyrYsaPVdAnFoJjiksCXJ7hfEYgD",
	"2q5pghRs6arqVjRvT5gfgWfWcHWmw1ZuCzphgd5KfWGJ",
	"wyvPkWjVZz1M8fHQnMMCDTQDbkManefNNhweYk5WkcF",
	"3KCKozbAaF75qEU33jtzozcJ29yJuaLJTy2jFdzUY8bT",
	"4vieeGHPYPG2MmyPRcYjdiDmmhN3ww7hsFNap8pVN3Ey",
	"4TQLFNWK8AovT1gFvda5jfw2oJeRMKEmw7aH6MGBJ3or",
}

// SenderConfig configures the accelerated relay.
type SenderConfig struct {
	Endpoint    string
	APIKey      string
	SwqosOnly   bool
	MinTipSOL   float64 // already floored for the routing mode
	DynamicTips bool
	TipFloorURL string
	FloorTTL    time.Duration
	HTTPClient  *http.Client

	MaxRetries int           // Default: DefaultMaxRetries
	RetryDelay time.Duration // Default: DefaultRetryDelay
}

// SenderClient submits transactions through the Helius Sender relay.
type SenderClient struct {
	cfg     SenderConfig
	client  *http.Client
	logger  *logrus.Logger
	backoff backoff

	mu        sync.Mutex
	floorSOL  float64
	fetchedAt time.Time
}

// NewSenderClient creates a relay client.
func NewSenderClient(cfg SenderConfig, logger *logrus.Logger) *SenderClient {
	if cfg.TipFloorURL == "" {
		cfg.TipFloorURL = DefaultTipFloorURL
	}
	if cfg.FloorTTL <= 0 {
		cfg.FloorTTL = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	b := defaultBackoff()
	if cfg.MaxRetries > 0 {
		b.maxRetries = cfg.MaxRetries
	}
	if cfg.RetryDelay > 0 {
		b.delay = cfg.RetryDelay
	}
	return &SenderClient{cfg: cfg, client: client, logger: logger, backoff: b}
}

// SwqosOnly reports the routing mode.
func (s *SenderClient) SwqosOnly() bool { return s.cfg.SwqosOnly }

// MinTipLamports is the smallest tip the relay accepts.
func (s *SenderClient) MinTipLamports() uint64 {
	return solToLamports(s.cfg.MinTipSOL)
}

// TipAccount picks a tip recipient.
func (s *SenderClient) TipAccount() string {
	return SenderTipAccounts[rand.IntN(len(SenderTipAccounts))]
}

// TipLamports returns the tip for the next transaction. Dynamic tips apply
// to dual routing only and never go below the minimum; a failed floor fetch
// falls back to the minimum.
func (s *SenderClient) TipLamports(ctx context.Context) uint64 {
	minTip := s.cfg.MinTipSOL
	if !s.cfg.DynamicTips || s.cfg.SwqosOnly {
		return solToLamports(minTip)
	}

	floor, err := s.tipFloor(ctx)
	if err != nil {
		s.logger.WithError(err).WithField("fallback_sol", minTip).Warn("tip floor fetch failed")
		return solToLamports(minTip)
	}
	return solToLamports(math.Max(floor, minTip))
}

func (s *SenderClient) tipFloor(ctx context.Context) (float64, error) {
	s.mu.Lock()
	if !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < s.cfg.FloorTTL {
		v := s.floorSOL
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.TipFloorURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("tip floor status %d", resp.StatusCode)
	}

	v := gjson.GetBytes(body, "0.landed_tips_75th_percentile")
	if !v.Exists() || v.Type != gjson.Number {
		return 0, errors.New("tip floor: missing landed_tips_75th_percentile")
	}

	s.mu.Lock()
	s.floorSOL = v.Float()
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return v.Float(), nil
}

// SendTransaction posts a signed transaction to the relay. The relay does
// no preflight and no node-side retries, so transient failures are retried
// here. Resent bytes carry the same signature and land at most once.
func (s *SenderClient) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	const op = "sender.sendTransaction"

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uint64(time.Now().UnixMilli()),
		Method:  "sendTransaction",
		Params: []interface{}{
			base64.StdEncoding.EncodeToString(raw),
			map[string]interface{}{
				"encoding":      "base64",
				"skipPreflight": true,
				"maxRetries":    0,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	endpoint, err := s.endpointURL()
	if err != nil {
		return "", err
	}

	var sig string
	err = withRetry(ctx, s.backoff, op, func() error {
		var postErr error
		sig, postErr = s.post(ctx, op, endpoint, body)
		return postErr
	})
	if err != nil {
		return "", err
	}
	return sig, nil
}

func (s *SenderClient) post(ctx context.Context, op, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", &TransientNetworkError{Op: op, Err: err}
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", &TransientNetworkError{Op: op, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", &TransientNetworkError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(truncate(respBody))}
	case resp.StatusCode != http.StatusOK:
		return "", &TerminalRPCError{Op: op, StatusCode: resp.StatusCode, Message: truncate(respBody)}
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return "", &TransientNetworkError{Op: op, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	if rpcResp.Error != nil {
		return "", classifyRPCError(op, rpcResp.Error)
	}
	var sig string
	if err := json.Unmarshal(rpcResp.Result, &sig); err != nil || sig == "" {
		return "", &TerminalRPCError{Op: op, Message: "missing signature in response"}
	}
	return sig, nil
}

func (s *SenderClient) endpointURL() (string, error) {
	u, err := url.Parse(s.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse sender endpoint: %w", err)
	}
	q := u.Query()
	if s.cfg.SwqosOnly {
		q.Set("swqos_only", "true")
	}
	if s.cfg.APIKey != "" {
		q.Set("api-key", s.cfg.APIKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func solToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(math.Round(sol * lamportsPerSOL))
}
