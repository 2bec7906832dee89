// Package execution signs, submits and confirms orders.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/order"
	"solana-launch-sniper/internal/signer"
	"solana-launch-sniper/internal/solana"
)

// Submission routes.
const (
	RouteRPC    = "rpc"
	RouteRelay  = "relay"
	RouteDryRun = "dry-run"
)

const maxAttempts = 2

// Relay is an accelerated submission path.
type Relay interface {
	SendTransaction(ctx context.Context, raw []byte) (string, error)
	MinTipLamports() uint64
}

// Options configures a Service.
type Options struct {
	Gateway solana.Gateway
	// Relay, when set, replaces RPC submission.
	Relay  Relay
	DryRun bool

	ConfirmTimeout time.Duration // Default: 15s
	PollInterval   time.Duration // Default: 500ms
	Commitment     string        // Default: confirmed
	// ExpiryWait bounds polling past ConfirmTimeout while waiting for the
	// block height to prove the blockhash expired. Default: 90s
	ExpiryWait time.Duration

	Now    func() time.Time
	Logger *logrus.Logger
}

// Result describes a confirmed order.
type Result struct {
	Signature   string    `json:"signature"`
	Route       string    `json:"route"`
	Attempts    int       `json:"attempts"`
	Slot        int64     `json:"slot,omitempty"`
	ConfirmedAt time.Time `json:"confirmed_at"`
	DryRun      bool      `json:"dry_run"`
}

// Service executes orders.
type Service struct {
	opts   Options
	logger *logrus.Logger
}

// New creates a Service.
func New(opts Options) *Service {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 15 * time.Second
	}
	if opts.ExpiryWait <= 0 {
		opts.ExpiryWait = 90 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.Commitment == "" {
		opts.Commitment = solana.CommitmentConfirmed
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{opts: opts, logger: logger}
}

// DryRun reports whether submissions are simulated.
func (s *Service) DryRun() bool { return s.opts.DryRun }

// Execute fetches a blockhash, signs, submits and waits for confirmation.
// The order is re-signed with a fresh blockhash once, and only when the first
// one is proven expired. Any other failure returns an *OrderFailedError; one
// wrapping ErrUnconfirmed may still land.
func (s *Service) Execute(ctx context.Context, o *order.Order, sg signer.Signer) (*Result, error) {
	if sg == nil || !sg.IsReady() {
		return nil, &OrderFailedError{Cause: ErrSignerNotReady}
	}
	if s.opts.Relay != nil && !s.opts.DryRun && o.TipLamports < s.opts.Relay.MinTipLamports() {
		return nil, &OrderFailedError{Cause: fmt.Errorf("%w: %d < %d lamports", ErrTipTooLow, o.TipLamports, s.opts.Relay.MinTipLamports())}
	}

	log := s.logger.WithFields(logrus.Fields{"side": o.Side, "mint": o.Mint})
	ctx = signer.WithDescription(ctx, fmt.Sprintf("%s %d base units of %s, bound %d lamports", o.Side, o.TokenAmount, o.Mint, o.Bound))

	var (
		lastErr  error
		attempts int
	)
	for attempts = 1; attempts <= maxAttempts; attempts++ {
		res, err := s.attempt(ctx, o, sg)
		if err == nil {
			res.Attempts = attempts
			log.WithFields(logrus.Fields{
				"signature": res.Signature,
				"route":     res.Route,
				"attempt":   attempts,
			}).Info("order confirmed")
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || !expired(err) || attempts == maxAttempts {
			break
		}
		log.WithError(err).WithField("attempt", attempts).Warn("blockhash expired, refreshing")
	}

	observability.RecordOrderFailed(string(o.Side))
	return nil, &OrderFailedError{Attempts: attempts, Cause: lastErr}
}

func expired(err error) bool {
	return errors.Is(err, errExpired) || solana.IsBlockhashNotFound(err)
}

func (s *Service) attempt(ctx context.Context, o *order.Order, sg signer.Signer) (*Result, error) {
	bh, err := s.opts.Gateway.GetLatestBlockhash(ctx)
	if err != nil {
		return nil, fmt.Errorf("get blockhash: %w", err)
	}
	raw, err := sg.Sign(ctx, o.Instructions, bh.Hash)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	if s.opts.DryRun {
		sig := "dry-run-" + uuid.NewString()
		s.logger.WithFields(logrus.Fields{
			"side":      o.Side,
			"mint":      o.Mint,
			"signature": sig,
			"bytes":     len(raw),
		}).Info("dry run: transaction signed, not submitted")
		return &Result{Signature: sig, Route: RouteDryRun, ConfirmedAt: s.opts.Now(), DryRun: true}, nil
	}

	route := RouteRPC
	var sig string
	if s.opts.Relay != nil {
		route = RouteRelay
		sig, err = s.opts.Relay.SendTransaction(ctx, raw)
	} else {
		// Preflight off: the buy races other snipers.
		zero := uint(0)
		sig, err = s.opts.Gateway.SendTransaction(ctx, raw, solana.SendOptions{
			SkipPreflight: true,
			MaxRetries:    &zero,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("submit via %s: %w", route, err)
	}
	observability.RecordOrderSubmitted(string(o.Side), route)
	if o.TipLamports > 0 {
		observability.RecordTip(o.TipLamports)
	}

	start := time.Now()
	slot, err := s.confirm(ctx, sig, bh.LastValidBlockHeight)
	if err != nil {
		return nil, fmt.Errorf("confirm %s: %w", sig, err)
	}
	observability.RecordConfirmLatency(time.Since(start).Seconds())
	return &Result{Signature: sig, Route: route, Slot: slot, ConfirmedAt: s.opts.Now()}, nil
}

// confirm polls the signature status until it reaches the commitment or fails
// on chain. It returns errExpired only once the block height has passed
// lastValid with the transaction still unseen. Past ConfirmTimeout it keeps
// polling for up to ExpiryWait more, then gives up with ErrUnconfirmed.
func (s *Service) confirm(ctx context.Context, sig string, lastValid uint64) (int64, error) {
	log := s.logger.WithField("signature", sig)
	slow := time.Now().Add(s.opts.ConfirmTimeout)
	giveUp := slow.Add(s.opts.ExpiryWait)
	if lastValid == 0 {
		// Expiry cannot be proven without a height bound.
		giveUp = slow
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	var (
		landed bool
		warned bool
	)
	for {
		st, err := s.status(ctx, sig)
		switch {
		case err != nil:
			return 0, err
		case st != nil:
			landed = true
			if st.Err != nil {
				return 0, &TransactionError{Signature: sig, Err: st.Err}
			}
			if st.Reached(s.opts.Commitment) {
				return st.Slot, nil
			}
		case !landed && lastValid > 0:
			if h, herr := s.opts.Gateway.GetBlockHeight(ctx); herr == nil && h > lastValid {
				// It may have landed right before the last valid block.
				st, err := s.status(ctx, sig)
				if err != nil {
					return 0, err
				}
				if st == nil {
					return 0, errExpired
				}
				landed = true
				continue
			}
		}

		now := time.Now()
		if now.After(giveUp) {
			return 0, fmt.Errorf("%w: landed=%t after %s", ErrUnconfirmed, landed, s.opts.ConfirmTimeout+s.opts.ExpiryWait)
		}
		if now.After(slow) && !warned {
			warned = true
			log.WithField("last_valid_block_height", lastValid).Warn("confirmation slow, waiting for blockhash expiry")
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// status returns the signature status, nil while unknown. Retryable lookup
// failures read as unknown.
func (s *Service) status(ctx context.Context, sig string) (*solana.SignatureStatus, error) {
	statuses, err := s.opts.Gateway.GetSignatureStatuses(ctx, sig)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if solana.IsRetryable(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(statuses) == 0 {
		return nil, nil
	}
	return statuses[0], nil
}
