// Package monitor merges log subscriptions from several WebSocket endpoints
// into one deduplicated stream of launch notifications.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/solana"
)

// DefaultQueueSize is the capacity of the shared notification queue.
const DefaultQueueSize = 1_000

// Dialer opens a WebSocket client for one endpoint.
type Dialer func(ctx context.Context, endpoint string) (solana.WSClient, error)

// Options configures a Monitor.
type Options struct {
	Endpoints     []string
	ProgramID     string
	Commitment    string
	QueueSize     int
	DedupCapacity int

	// Dial defaults to solana.NewWSClient with reconnect metrics wired in.
	Dial Dialer

	RedialDelay    time.Duration // Default: 500ms
	MaxRedialDelay time.Duration // Default: 30s

	Logger *logrus.Logger
}

// Monitor fans in notifications from every endpoint. Producers block on the
// shared queue when it is full.
type Monitor struct {
	opts   Options
	dedup  *Dedup
	queue  chan solana.LogNotification
	logger *logrus.Logger

	wg sync.WaitGroup
}

// New creates a Monitor.
func New(opts Options) (*Monitor, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("monitor: at least one endpoint is required")
	}
	if opts.ProgramID == "" {
		return nil, errors.New("monitor: program id is required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.RedialDelay <= 0 {
		opts.RedialDelay = 500 * time.Millisecond
	}
	if opts.MaxRedialDelay <= 0 {
		opts.MaxRedialDelay = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.Dial == nil {
		opts.Dial = defaultDialer(opts.Logger)
	}

	dedup, err := NewDedup(opts.DedupCapacity)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		opts:   opts,
		dedup:  dedup,
		queue:  make(chan solana.LogNotification, opts.QueueSize),
		logger: opts.Logger,
	}, nil
}

func defaultDialer(logger *logrus.Logger) Dialer {
	return func(ctx context.Context, endpoint string) (solana.WSClient, error) {
		cfg := solana.DefaultWSConfig()
		cfg.Logger = logger
		cfg.OnReconnect = observability.RecordReconnect
		c, err := solana.NewWSClient(ctx, endpoint, &cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Run starts one producer per endpoint and the dedup consumer. The returned
// channel yields first arrivals of successful transactions and is closed
// once ctx is done.
func (m *Monitor) Run(ctx context.Context) <-chan solana.LogNotification {
	out := make(chan solana.LogNotification)

	var producers sync.WaitGroup
	for _, ep := range m.opts.Endpoints {
		producers.Add(1)
		m.wg.Add(1)
		go func(endpoint string) {
			defer m.wg.Done()
			defer producers.Done()
			m.produce(ctx, endpoint)
		}(ep)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(out)
		m.consume(ctx, out)
	}()

	m.logger.WithFields(logrus.Fields{
		"endpoints":  len(m.opts.Endpoints),
		"program":    m.opts.ProgramID,
		"commitment": m.opts.Commitment,
	}).Info("chain monitor started")
	return out
}

// Wait blocks until every goroutine started by Run has exited.
func (m *Monitor) Wait() { m.wg.Wait() }

// produce keeps one endpoint subscribed until ctx is done, re-dialing with
// backoff whenever the subscription ends.
func (m *Monitor) produce(ctx context.Context, endpoint string) {
	log := m.logger.WithField("endpoint", endpoint)
	delay := m.opts.RedialDelay

	for ctx.Err() == nil {
		received, err := m.session(ctx, endpoint)
		if ctx.Err() != nil {
			return
		}
		if received {
			delay = m.opts.RedialDelay
		}
		if err != nil {
			log.WithError(err).WithField("retry_in", delay).Warn("subscription failed")
		} else {
			log.WithField("retry_in", delay).Warn("subscription closed")
		}
		observability.RecordReconnect(endpoint)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > m.opts.MaxRedialDelay {
			delay = m.opts.MaxRedialDelay
		}
	}
}

// session runs one dial-subscribe-forward cycle. received reports whether
// any notification arrived.
func (m *Monitor) session(ctx context.Context, endpoint string) (received bool, err error) {
	client, err := m.opts.Dial(ctx, endpoint)
	if err != nil {
		return false, err
	}
	defer client.Close()

	ch, err := client.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions:   []string{m.opts.ProgramID},
		Commitment: m.opts.Commitment,
	})
	if err != nil {
		return false, err
	}

	for {
		select {
		case <-ctx.Done():
			return received, nil
		case notif, ok := <-ch:
			if !ok {
				return received, nil
			}
			received = true
			if notif.Endpoint == "" {
				notif.Endpoint = endpoint
			}
			observability.RecordNotification(endpoint)
			select {
			case m.queue <- notif:
			case <-ctx.Done():
				return received, nil
			}
		}
	}
}

func (m *Monitor) consume(ctx context.Context, out chan<- solana.LogNotification) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-m.queue:
			observability.SetQueueDepth(len(m.queue))
			if notif.Err != nil {
				observability.RecordFailedTx()
				continue
			}
			if m.dedup.Seen(notif.Signature) {
				observability.RecordDuplicate()
				continue
			}
			select {
			case out <- notif:
			case <-ctx.Done():
				return
			}
		}
	}
}
