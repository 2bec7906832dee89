// Package config holds the runtime Settings record and its loaders.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Well-known program ids.
const (
	PumpFunProgramID  = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
	MetaplexProgramID = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"
)

// Run modes.
const (
	ModeDryRun = "dry-run"
	ModeLive   = "live"
)

// Signer kinds.
const (
	SignerKeypair    = "keypair"
	SignerDelegating = "delegating"
)

// Settings is the flat key-value record driving every decision.
// Keys listed in restartOnlyKeys are captured at Start and ignored until the
// next Start; everything else applies to the next relevant decision.
type Settings struct {
	Mode string `mapstructure:"mode" json:"mode"`

	// Endpoints
	SolanaRPCURLs        []string `mapstructure:"solana_rpc_urls" json:"solana_rpc_urls"`
	SolanaWSURLs         []string `mapstructure:"solana_ws_urls" json:"solana_ws_urls"`
	PumpFunProgram       string   `mapstructure:"pump_fun_program" json:"pump_fun_program"`
	MetadataProgram      string   `mapstructure:"metadata_program" json:"metadata_program"`
	Commitment           string   `mapstructure:"commitment" json:"commitment"`
	RotateRPC            bool     `mapstructure:"rotate_rpc" json:"rotate_rpc"`
	RPCRequestsPerSecond float64  `mapstructure:"rpc_requests_per_second" json:"rpc_requests_per_second"`

	// Sizing
	BuyAmount   float64 `mapstructure:"buy_amount" json:"buy_amount"` // SOL per buy
	SlippageBps uint64  `mapstructure:"slippage_bps" json:"slippage_bps"`

	// Exits
	TPPercent          float64 `mapstructure:"tp_percent" json:"tp_percent"`
	SLPercent          float64 `mapstructure:"sl_percent" json:"sl_percent"` // negative, e.g. -50
	TimeoutSecs        int64   `mapstructure:"timeout_secs" json:"timeout_secs"`
	PollIntervalMs     int64   `mapstructure:"poll_interval_ms" json:"poll_interval_ms"`
	MaxHeldCoins       int     `mapstructure:"max_held_coins" json:"max_held_coins"`
	MaxCreateToBuySecs int64   `mapstructure:"max_create_to_buy_secs" json:"max_create_to_buy_secs"`

	// Heuristics
	MinLiquiditySOL       float64 `mapstructure:"min_liquidity_sol" json:"min_liquidity_sol"`
	MaxLiquiditySOL       float64 `mapstructure:"max_liquidity_sol" json:"max_liquidity_sol"`
	MinTokensThreshold    float64 `mapstructure:"min_tokens_threshold" json:"min_tokens_threshold"` // whole tokens
	MaxSOLPerToken        float64 `mapstructure:"max_sol_per_token" json:"max_sol_per_token"`
	EnableSaferSniping    bool    `mapstructure:"enable_safer_sniping" json:"enable_safer_sniping"`
	StrictMinLiquiditySOL float64 `mapstructure:"strict_min_liquidity_sol" json:"strict_min_liquidity_sol"`
	StrictMaxSOLPerToken  float64 `mapstructure:"strict_max_sol_per_token" json:"strict_max_sol_per_token"`

	// Ingestion
	DedupCapacity     int   `mapstructure:"dedup_capacity" json:"dedup_capacity"`
	QueueSize         int   `mapstructure:"queue_size" json:"queue_size"`
	PipelineWorkers   int   `mapstructure:"pipeline_workers" json:"pipeline_workers"` // candidates handled at once
	MetadataTimeoutMs int64 `mapstructure:"metadata_timeout_ms" json:"metadata_timeout_ms"`

	// Fees and relay
	ComputeUnitLimit     uint32  `mapstructure:"compute_unit_limit" json:"compute_unit_limit"`
	ComputeUnitPrice     uint64  `mapstructure:"compute_unit_price" json:"compute_unit_price"` // micro-lamports
	HeliusSenderEnabled  bool    `mapstructure:"helius_sender_enabled" json:"helius_sender_enabled"`
	HeliusAPIKey         string  `mapstructure:"helius_api_key" json:"-"`
	HeliusSenderEndpoint string  `mapstructure:"helius_sender_endpoint" json:"helius_sender_endpoint"`
	HeliusMinTipSOL      float64 `mapstructure:"helius_min_tip_sol" json:"helius_min_tip_sol"`
	HeliusUseSwqosOnly   bool    `mapstructure:"helius_use_swqos_only" json:"helius_use_swqos_only"`
	HeliusUseDynamicTips bool    `mapstructure:"helius_use_dynamic_tips" json:"helius_use_dynamic_tips"`
	ConfirmTimeoutSecs   int64   `mapstructure:"confirm_timeout_secs" json:"confirm_timeout_secs"`

	// Signing
	SignerKind          string `mapstructure:"signer" json:"signer"`
	WalletPrivateKey    string `mapstructure:"wallet_private_key" json:"-"`
	WalletKeypairPath   string `mapstructure:"wallet_keypair_path" json:"wallet_keypair_path,omitempty"`
	WalletPublicKey     string `mapstructure:"wallet_public_key" json:"wallet_public_key,omitempty"` // delegating signer only
	ApprovalURL         string `mapstructure:"approval_url" json:"approval_url,omitempty"`
	ApprovalTimeoutSecs int64  `mapstructure:"approval_timeout_secs" json:"approval_timeout_secs"`
}

// restartOnlyKeys take effect on the next Start only.
var restartOnlyKeys = []string{"solana_ws_urls", "pump_fun_program", "commitment"}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		Mode:                 ModeDryRun,
		SolanaRPCURLs:        []string{"https://api.mainnet-beta.solana.com"},
		SolanaWSURLs:         []string{"wss://api.mainnet-beta.solana.com"},
		PumpFunProgram:       PumpFunProgramID,
		MetadataProgram:      MetaplexProgramID,
		Commitment:           "confirmed",
		RotateRPC:            true,
		RPCRequestsPerSecond: 20,

		BuyAmount:   0.1,
		SlippageBps: 500,

		TPPercent:          100,
		SLPercent:          -50,
		TimeoutSecs:        50,
		PollIntervalMs:     2000,
		MaxHeldCoins:       100,
		MaxCreateToBuySecs: 6,

		MinLiquiditySOL:       0,
		MaxLiquiditySOL:       100,
		MinTokensThreshold:    1_000_000,
		MaxSOLPerToken:        0.0001,
		EnableSaferSniping:    false,
		StrictMinLiquiditySOL: 0.01,
		StrictMaxSOLPerToken:  0.00005,

		DedupCapacity:     10_000,
		QueueSize:         1_000,
		PipelineWorkers:   16,
		MetadataTimeoutMs: 3_000,

		ComputeUnitLimit:     200_000,
		ComputeUnitPrice:     100_000,
		HeliusSenderEndpoint: "https://sender.helius-rpc.com/fast",
		HeliusMinTipSOL:      0.001,
		HeliusUseDynamicTips: true,
		ConfirmTimeoutSecs:   15,

		SignerKind:          SignerKeypair,
		ApprovalTimeoutSecs: 120,
	}
}

// Validate reports the first invalid field.
func (s Settings) Validate() error {
	switch {
	case s.Mode != ModeDryRun && s.Mode != ModeLive:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeDryRun, ModeLive, s.Mode)
	case len(s.SolanaRPCURLs) == 0:
		return errors.New("solana_rpc_urls must not be empty")
	case len(s.SolanaWSURLs) == 0:
		return errors.New("solana_ws_urls must not be empty")
	case strings.TrimSpace(s.PumpFunProgram) == "":
		return errors.New("pump_fun_program is required")
	case s.BuyAmount <= 0:
		return fmt.Errorf("buy_amount must be positive, got %v", s.BuyAmount)
	case s.SlippageBps >= 10_000:
		return fmt.Errorf("slippage_bps must be below 10000, got %d", s.SlippageBps)
	case s.TPPercent <= 0:
		return fmt.Errorf("tp_percent must be positive, got %v", s.TPPercent)
	case s.SLPercent >= 0 || s.SLPercent <= -100:
		return fmt.Errorf("sl_percent must be in (-100, 0), got %v", s.SLPercent)
	case s.TimeoutSecs <= 0:
		return fmt.Errorf("timeout_secs must be positive, got %d", s.TimeoutSecs)
	case s.PollIntervalMs <= 0:
		return fmt.Errorf("poll_interval_ms must be positive, got %d", s.PollIntervalMs)
	case s.MinLiquiditySOL < 0 || s.MaxLiquiditySOL < s.MinLiquiditySOL:
		return fmt.Errorf("liquidity bounds invalid: [%v, %v]", s.MinLiquiditySOL, s.MaxLiquiditySOL)
	case s.MaxSOLPerToken <= 0:
		return fmt.Errorf("max_sol_per_token must be positive, got %v", s.MaxSOLPerToken)
	case s.DedupCapacity <= 0 || s.QueueSize <= 0:
		return errors.New("dedup_capacity and queue_size must be positive")
	case s.PipelineWorkers <= 0:
		return fmt.Errorf("pipeline_workers must be positive, got %d", s.PipelineWorkers)
	case s.SignerKind != SignerKeypair && s.SignerKind != SignerDelegating:
		return fmt.Errorf("signer must be %q or %q, got %q", SignerKeypair, SignerDelegating, s.SignerKind)
	case s.SignerKind == SignerDelegating && (s.ApprovalURL == "" || s.WalletPublicKey == ""):
		return errors.New("approval_url and wallet_public_key are required for the delegating signer")
	}
	return nil
}

// Apply decodes a partial key-value update over a copy of s and validates the
// result. Unknown keys are rejected. s itself is never modified.
func (s Settings) Apply(partial map[string]any) (Settings, error) {
	next := s.Clone()
	if len(partial) == 0 {
		return next, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &next,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		ZeroFields:       true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return s, fmt.Errorf("create settings decoder: %w", err)
	}
	if err := dec.Decode(partial); err != nil {
		return s, fmt.Errorf("decode settings update: %w", err)
	}
	if err := next.Validate(); err != nil {
		return s, err
	}
	return next, nil
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.SolanaRPCURLs = append([]string(nil), s.SolanaRPCURLs...)
	c.SolanaWSURLs = append([]string(nil), s.SolanaWSURLs...)
	return c
}

// RestartRequired reports whether next differs from s in a field that only
// takes effect on the next Start.
func (s Settings) RestartRequired(next Settings) bool {
	return !reflect.DeepEqual(s.SolanaWSURLs, next.SolanaWSURLs) ||
		s.PumpFunProgram != next.PumpFunProgram ||
		s.Commitment != next.Commitment
}

// RestartOnlyKeys lists the keys captured at Start.
func RestartOnlyKeys() []string {
	return append([]string(nil), restartOnlyKeys...)
}

// PollInterval returns the position poll period.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// Timeout returns the position hold limit.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSecs) * time.Second
}

// MetadataTimeout returns the off-chain metadata fetch limit.
func (s Settings) MetadataTimeout() time.Duration {
	return time.Duration(s.MetadataTimeoutMs) * time.Millisecond
}

// ConfirmTimeout returns how long a submitted transaction is polled.
func (s Settings) ConfirmTimeout() time.Duration {
	return time.Duration(s.ConfirmTimeoutSecs) * time.Second
}

// ApprovalTimeout bounds the wait for an external signature.
func (s Settings) ApprovalTimeout() time.Duration {
	return time.Duration(s.ApprovalTimeoutSecs) * time.Second
}

// MaxCandidateAge returns the create-to-buy staleness bound. Zero disables it.
func (s Settings) MaxCandidateAge() time.Duration {
	return time.Duration(s.MaxCreateToBuySecs) * time.Second
}

// EffectiveMinTipSOL returns the relay's minimum tip for the routing mode.
func (s Settings) EffectiveMinTipSOL() float64 {
	floor := 0.001
	if s.HeliusUseSwqosOnly {
		floor = 0.000005
	}
	if s.HeliusMinTipSOL > floor {
		return s.HeliusMinTipSOL
	}
	return floor
}
