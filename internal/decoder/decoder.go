// Package decoder turns create notifications into launch candidates.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"solana-launch-sniper/internal/config"
	"solana-launch-sniper/internal/domain"
	"solana-launch-sniper/internal/observability"
	"solana-launch-sniper/internal/solana"
	"solana-launch-sniper/internal/wire"
)

// ErrFiltered marks notifications that are not launches. Callers drop these
// silently.
var ErrFiltered = errors.New("not a launch")

var createMarkers = []string{
	"Program log: Instruction: Create",
	"Program log: Instruction: create",
}

// PreFilter reports whether logs announce a create instruction.
func PreFilter(logs []string) bool {
	for _, line := range logs {
		for _, marker := range createMarkers {
			if strings.Contains(line, marker) {
				return true
			}
		}
	}
	return false
}

// Options configures a Decoder.
type Options struct {
	Gateway         solana.Gateway
	ProgramID       string
	MetadataProgram string
	MetadataTimeout time.Duration // Default: 3s
	HTTPClient      *http.Client

	// TxAttempts bounds fetches of a transaction that is not yet visible.
	TxAttempts   int           // Default: 3
	TxRetryDelay time.Duration // Default: 500ms, doubled per attempt

	Now    func() time.Time
	Logger *logrus.Logger
}

// Decoder resolves candidates from log notifications.
type Decoder struct {
	opts   Options
	client *http.Client
	logger *logrus.Logger
}

// New creates a Decoder.
func New(opts Options) *Decoder {
	if opts.ProgramID == "" {
		opts.ProgramID = config.PumpFunProgramID
	}
	if opts.MetadataProgram == "" {
		opts.MetadataProgram = config.MetaplexProgramID
	}
	if opts.MetadataTimeout <= 0 {
		opts.MetadataTimeout = 3 * time.Second
	}
	if opts.TxAttempts <= 0 {
		opts.TxAttempts = 3
	}
	if opts.TxRetryDelay <= 0 {
		opts.TxRetryDelay = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Decoder{opts: opts, client: client, logger: logger}
}

// Decode resolves notif into a candidate. Notifications without a create
// instruction for the monitored program return an error wrapping ErrFiltered.
// Metadata failures never fail the decode.
func (d *Decoder) Decode(ctx context.Context, notif solana.LogNotification) (*domain.Candidate, error) {
	if !PreFilter(notif.Logs) {
		return nil, ErrFiltered
	}

	tx, err := d.fetchTransaction(ctx, notif.Signature)
	if err != nil {
		observability.RecordDecodeError("fetch")
		return nil, fmt.Errorf("fetch transaction %s: %w", notif.Signature, err)
	}

	var loaded wire.LoadedAddresses
	if tx.Meta != nil {
		loaded = wire.LoadedAddresses{
			Writable: tx.Meta.LoadedAddresses.Writable,
			Readonly: tx.Meta.LoadedAddresses.Readonly,
		}
	}
	dtx, err := wire.DecodeTransaction(tx.Raw, loaded)
	if err != nil {
		observability.RecordDecodeError("transaction")
		return nil, fmt.Errorf("decode transaction %s: %w", notif.Signature, err)
	}
	if tx.Meta != nil && len(tx.Meta.InnerInstructions) > 0 {
		if err := dtx.AttachInner(innerGroups(tx.Meta.InnerInstructions)); err != nil {
			// Outer instructions are still usable.
			d.logger.WithError(err).WithField("signature", notif.Signature).Debug("inner instructions skipped")
		}
	}

	ca, err := wire.ExtractCreate(dtx, d.opts.ProgramID)
	if errors.Is(err, wire.ErrNoCreate) {
		return nil, fmt.Errorf("%w: %s has no create instruction", ErrFiltered, notif.Signature)
	}
	if err != nil {
		observability.RecordDecodeError("create")
		return nil, fmt.Errorf("extract create %s: %w", notif.Signature, err)
	}

	slot := notif.Slot
	if slot == 0 {
		slot = tx.Slot
	}
	c := &domain.Candidate{
		Mint:            ca.Mint,
		Creator:         ca.Creator,
		BondingCurve:    ca.BondingCurve,
		AssociatedCurve: ca.AssociatedCurve,
		Signature:       notif.Signature,
		Slot:            slot,
		DetectedAt:      d.opts.Now(),
		Metadata:        d.resolveMetadata(ctx, ca),
	}
	observability.RecordCandidate()

	d.logger.WithFields(logrus.Fields{
		"mint":      c.Mint,
		"symbol":    c.Symbol(),
		"creator":   c.Creator,
		"signature": c.Signature,
		"slot":      c.Slot,
		"endpoint":  notif.Endpoint,
	}).Info("launch detected")
	return c, nil
}

// fetchTransaction retries transactions the node has not indexed yet.
func (d *Decoder) fetchTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < d.opts.TxAttempts; attempt++ {
		tx, err := d.opts.Gateway.GetTransaction(ctx, signature)
		if err == nil {
			if tx == nil || len(tx.Raw) == 0 {
				return nil, &solana.TerminalRPCError{Op: "getTransaction", Message: "empty transaction payload"}
			}
			return tx, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !solana.IsRetryable(err) || attempt == d.opts.TxAttempts-1 {
			break
		}

		delay := d.opts.TxRetryDelay * time.Duration(1<<attempt)
		d.logger.WithFields(logrus.Fields{
			"signature": signature,
			"attempt":   attempt + 1,
			"delay":     delay,
		}).WithError(err).Debug("transaction not ready, retrying")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func innerGroups(in []solana.InnerInstructions) []wire.InnerGroup {
	groups := make([]wire.InnerGroup, 0, len(in))
	for _, g := range in {
		raw := make([]wire.RawInstruction, 0, len(g.Instructions))
		for _, ix := range g.Instructions {
			raw = append(raw, wire.RawInstruction{
				ProgramIDIndex: ix.ProgramIDIndex,
				Accounts:       ix.Accounts,
				Data:           ix.Data,
			})
		}
		groups = append(groups, wire.InnerGroup{Index: g.Index, Instructions: raw})
	}
	return groups
}
