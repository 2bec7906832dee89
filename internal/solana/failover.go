package solana

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// FailoverClient spreads calls over several gateways. A call that exhausts
// its retries on one endpoint with a transient failure moves to the next;
// terminal failures return immediately. The endpoint that last succeeded is
// tried first.
type FailoverClient struct {
	gateways []Gateway
	names    []string
	current  atomic.Int64
	logger   *logrus.Logger
}

// NewFailoverClient wraps gateways in order of preference.
func NewFailoverClient(gateways []Gateway, names []string, logger *logrus.Logger) (*FailoverClient, error) {
	if len(gateways) == 0 {
		return nil, errors.New("failover: no gateways")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if len(names) != len(gateways) {
		names = make([]string, len(gateways))
		for i := range names {
			names[i] = fmt.Sprintf("rpc-%d", i)
		}
	}
	return &FailoverClient{gateways: gateways, names: names, logger: logger}, nil
}

// NewFailoverFromURLs builds one HTTPClient per URL with shared options.
func NewFailoverFromURLs(urls []string, logger *logrus.Logger, opts ...ClientOption) (*FailoverClient, error) {
	gateways := make([]Gateway, 0, len(urls))
	for _, u := range urls {
		gateways = append(gateways, NewHTTPClient(u, opts...))
	}
	return NewFailoverClient(gateways, urls, logger)
}

func failover[T any](ctx context.Context, f *FailoverClient, op string, fn func(Gateway) (T, error)) (T, error) {
	var zero T
	var lastErr error

	n := int64(len(f.gateways))
	start := f.current.Load()
	for i := int64(0); i < n; i++ {
		idx := (start + i) % n
		v, err := fn(f.gateways[idx])
		if err == nil {
			if i > 0 {
				f.current.Store(idx)
			}
			return v, nil
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return zero, err
		}
		lastErr = err
		if n > 1 {
			f.logger.WithFields(logrus.Fields{
				"op":       op,
				"endpoint": f.names[idx],
				"next":     f.names[(idx+1)%n],
			}).WithError(err).Warn("rpc endpoint failing, rotating")
		}
	}
	return zero, lastErr
}

func (f *FailoverClient) GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error) {
	return failover(ctx, f, "getAccountInfo", func(g Gateway) (*AccountInfo, error) {
		return g.GetAccountInfo(ctx, pubkey)
	})
}

func (f *FailoverClient) GetTransaction(ctx context.Context, signature string) (*Transaction, error) {
	return failover(ctx, f, "getTransaction", func(g Gateway) (*Transaction, error) {
		return g.GetTransaction(ctx, signature)
	})
}

func (f *FailoverClient) GetLatestBlockhash(ctx context.Context) (*Blockhash, error) {
	return failover(ctx, f, "getLatestBlockhash", func(g Gateway) (*Blockhash, error) {
		return g.GetLatestBlockhash(ctx)
	})
}

func (f *FailoverClient) GetBlockHeight(ctx context.Context) (uint64, error) {
	return failover(ctx, f, "getBlockHeight", func(g Gateway) (uint64, error) {
		return g.GetBlockHeight(ctx)
	})
}

func (f *FailoverClient) SendTransaction(ctx context.Context, raw []byte, opts SendOptions) (string, error) {
	return failover(ctx, f, "sendTransaction", func(g Gateway) (string, error) {
		return g.SendTransaction(ctx, raw, opts)
	})
}

func (f *FailoverClient) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error) {
	return failover(ctx, f, "getSignatureStatuses", func(g Gateway) ([]*SignatureStatus, error) {
		return g.GetSignatureStatuses(ctx, signatures...)
	})
}
