// Package engine runs the detection-to-exit pipeline and exposes the
// start/stop/settings/state surface.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"solana-launch-sniper/internal/config"
	"solana-launch-sniper/internal/decoder"
	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/logging"
	"solana-launch-sniper/internal/monitor"
	"solana-launch-sniper/internal/order"
	"solana-launch-sniper/internal/position"
	"solana-launch-sniper/internal/signer"
	"solana-launch-sniper/internal/solana"
	"solana-launch-sniper/internal/storage"
)

var (
	// ErrStateConflict rejects an order for a mint that is already reserved or held.
	ErrStateConflict = errors.New("mint already reserved or held")

	// ErrPositionLimit rejects an order once max_held_coins positions exist.
	ErrPositionLimit = errors.New("max held coins reached")
)

// Deps are the engine's collaborators. Gateway, Signer and Store are required.
type Deps struct {
	Gateway solana.Gateway
	Signer  signer.Signer
	Store   storage.KVStore
	Sink    storage.TradeSink // optional

	// Relay overrides the Sender client built from settings at Start.
	Relay Relay
	// Dial overrides the WebSocket dialer, mainly for tests.
	Dial monitor.Dialer

	Logs       *logging.RingHook
	HTTPClient *http.Client
	Now        func() time.Time
	Logger     *logrus.Logger
}

// State is the snapshot returned by GetState.
type State struct {
	Running        bool                 `json:"running"`
	Mode           string               `json:"mode"`
	OpenPositions  []domain.Position    `json:"open_positions"`
	RecentLogs     []string             `json:"recent_logs"`
	TradeHistory   []domain.TradeRecord `json:"trade_history"`
	PendingRestart bool                 `json:"pending_restart"`
}

// Engine owns settings, positions and history behind one mutex.
type Engine struct {
	deps   Deps
	logger *logrus.Logger

	mu        sync.Mutex
	settings  config.Settings
	active    config.Settings // captured at Start
	positions map[string]*domain.Position
	history   []domain.TradeRecord
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	run       *trader // current or last run; nil before the first Start
}

// New creates a stopped engine with the given base settings.
func New(st config.Settings, deps Deps) (*Engine, error) {
	if deps.Gateway == nil || deps.Signer == nil || deps.Store == nil {
		return nil, errors.New("engine: gateway, signer and store are required")
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	done := make(chan struct{})
	close(done)
	return &Engine{
		deps:      deps,
		logger:    deps.Logger,
		settings:  st.Clone(),
		positions: make(map[string]*domain.Position),
		done:      done,
	}, nil
}

// Restore loads persisted settings, positions and history. Persisted
// settings replace the base settings when present and valid. Positions
// caught mid-close are reopened.
func (e *Engine) Restore(ctx context.Context) error {
	var (
		st        config.Settings
		positions []domain.Position
		history   []domain.TradeRecord
	)
	st = e.Settings() // secrets are not persisted; keep the configured ones
	foundSettings, err := storage.LoadJSON(ctx, e.deps.Store, storage.KeySettings, &st)
	if err != nil {
		return err
	}
	if _, err := storage.LoadJSON(ctx, e.deps.Store, storage.KeyPositions, &positions); err != nil {
		return err
	}
	if _, err := storage.LoadJSON(ctx, e.deps.Store, storage.KeyTradeHistory, &history); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if foundSettings {
		if err := st.Validate(); err != nil {
			e.logger.WithError(err).Warn("persisted settings invalid, keeping configured settings")
		} else {
			e.settings = st
		}
	}
	for i := range positions {
		p := positions[i]
		if p.Status != domain.PositionOpen && p.Status != domain.PositionClosing {
			continue
		}
		p.Status = domain.PositionOpen
		e.positions[p.Mint] = &p
	}
	e.history = history
	e.logger.WithFields(logrus.Fields{
		"positions": len(e.positions),
		"trades":    len(e.history),
		"settings":  foundSettings,
	}).Info("state restored")
	return nil
}

// Start launches the pipeline and returns once it is running. Starting a
// running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	active := e.settings.Clone()
	rt, err := e.newTrader(active)
	if err != nil {
		return err
	}
	mon, err := monitor.New(monitor.Options{
		Endpoints:     active.SolanaWSURLs,
		ProgramID:     active.PumpFunProgram,
		Commitment:    active.Commitment,
		QueueSize:     active.QueueSize,
		DedupCapacity: active.DedupCapacity,
		Dial:          e.deps.Dial,
		Logger:        e.logger,
	})
	if err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}
	dec := decoder.New(decoder.Options{
		Gateway:         e.deps.Gateway,
		ProgramID:       active.PumpFunProgram,
		MetadataProgram: active.MetadataProgram,
		MetadataTimeout: active.MetadataTimeout(),
		HTTPClient:      e.deps.HTTPClient,
		Now:             e.deps.Now,
		Logger:          e.logger,
	})

	// The run outlives the caller's request context.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	e.active, e.run, e.cancel, e.done, e.running = active, rt, cancel, done, true

	go e.loop(runCtx, mon, dec, rt, active.PipelineWorkers, done)

	e.logger.WithFields(logrus.Fields{
		"mode":      active.Mode,
		"endpoints": len(active.SolanaWSURLs),
		"workers":   active.PipelineWorkers,
		"program":   active.PumpFunProgram,
		"wallet":    e.deps.Signer.PublicKey(),
	}).Info("engine started")
	return nil
}

func (e *Engine) loop(ctx context.Context, mon *monitor.Monitor, dec *decoder.Decoder, rt *trader, workers int, done chan struct{}) {
	defer close(done)

	// Go blocks once every worker is busy, which stalls the monitor's
	// bounded queue and in turn its producers.
	var candidates errgroup.Group
	candidates.SetLimit(workers)
	var g errgroup.Group
	g.Go(func() error {
		for notif := range mon.Run(ctx) {
			n := notif
			candidates.Go(func() error {
				e.handle(ctx, dec, rt, n)
				return nil
			})
		}
		mon.Wait()
		return nil
	})
	g.Go(func() error {
		position.NewMonitor(position.Options{
			Book:    book{e},
			Gateway: e.deps.Gateway,
			Seller:  rt,
			Now:     e.deps.Now,
			Logger:  e.logger,
		}).Run(ctx)
		return nil
	})
	_ = g.Wait()
	_ = candidates.Wait()
	e.logger.Info("engine stopped")
}

// Stop requests shutdown and returns immediately. In-flight orders and the
// current position tick run to completion.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	e.cancel()
	e.logger.Info("engine stop requested")
}

// Wait blocks until the last run has fully drained.
func (e *Engine) Wait() {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	<-done
}

// UpdateSettings validates a partial update, persists it, then applies it.
// Restart-only keys are stored but take effect on the next Start.
func (e *Engine) UpdateSettings(ctx context.Context, partial map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next, err := e.settings.Apply(partial)
	if err != nil {
		return err
	}
	if err := storage.SaveJSON(ctx, e.deps.Store, storage.KeySettings, next); err != nil {
		return err
	}
	e.settings = next
	fields := logrus.Fields{"keys": len(partial)}
	if e.running && e.active.RestartRequired(next) {
		fields["pending_restart"] = true
	}
	e.logger.WithFields(fields).Info("settings updated")
	return nil
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() config.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// GetState returns a snapshot. Reserved mints are not positions yet and are
// left out.
func (e *Engine) GetState() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{
		Running:       e.running,
		Mode:          e.settings.Mode,
		OpenPositions: e.heldLocked(),
		TradeHistory:  append([]domain.TradeRecord{}, e.history...),
		RecentLogs:    []string{},
	}
	if e.running {
		st.PendingRestart = e.active.RestartRequired(e.settings)
	}
	if e.deps.Logs != nil {
		st.RecentLogs = e.deps.Logs.Lines()
	}
	return st
}

// CloseManual sells the open position for mint and waits for the outcome.
func (e *Engine) CloseManual(ctx context.Context, mint string) error {
	rt, err := e.currentTrader()
	if err != nil {
		return err
	}
	m := position.NewMonitor(position.Options{
		Book:    book{e},
		Gateway: e.deps.Gateway,
		Seller:  rt,
		Now:     e.deps.Now,
		Logger:  e.logger,
	})
	return m.CloseManual(context.WithoutCancel(ctx), mint)
}

// currentTrader returns the current run's trading state, building one from the
// current settings when the engine was never started.
func (e *Engine) currentTrader() (*trader, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.run != nil {
		return e.run, nil
	}
	rt, err := e.newTrader(e.settings)
	if err != nil {
		return nil, err
	}
	e.run = rt
	return rt, nil
}

// heldLocked returns open and closing positions ordered by entry time.
func (e *Engine) heldLocked() []domain.Position {
	out := make([]domain.Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.Status == domain.PositionReserved {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].Mint < out[j].Mint
		}
		return out[i].EntryTime.Before(out[j].EntryTime)
	})
	return out
}

// newTrader must be called with e.mu held or before the engine is shared.
func (e *Engine) newTrader(st config.Settings) (*trader, error) {
	builder, err := order.NewBuilder(st.PumpFunProgram)
	if err != nil {
		return nil, fmt.Errorf("order builder: %w", err)
	}
	relay := e.deps.Relay
	if relay == nil && st.HeliusSenderEnabled {
		relay = solana.NewSenderClient(solana.SenderConfig{
			Endpoint:    st.HeliusSenderEndpoint,
			APIKey:      st.HeliusAPIKey,
			SwqosOnly:   st.HeliusUseSwqosOnly,
			MinTipSOL:   st.EffectiveMinTipSOL(),
			DynamicTips: st.HeliusUseDynamicTips,
		}, e.logger)
	}
	return &trader{
		engine:     e,
		builder:    builder,
		relay:      relay,
		commitment: st.Commitment,
	}, nil
}
