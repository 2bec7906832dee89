package order

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"solana-launch-sniper/internal/wire"
)

var ataCreateIdempotent = []byte{1}

// tradeAccounts are the resolved keys of one trade.
type tradeAccounts struct {
	program, global, feeRecipient, mint, curve, assocCurve solanago.PublicKey
	userATA, user, creatorVault, eventAuthority            solanago.PublicKey
	globalVolume, userVolume, feeConfig                    solanago.PublicKey
}

// keyParser records the first parse failure.
type keyParser struct{ err error }

func (p *keyParser) key(name, s string) solanago.PublicKey {
	if p.err != nil {
		return solanago.PublicKey{}
	}
	k, err := solanago.PublicKeyFromBase58(s)
	if err != nil {
		p.err = fmt.Errorf("%s %q: %w", name, s, err)
	}
	return k
}

func (p *keyParser) derived(name string, addr string, err error) solanago.PublicKey {
	if p.err != nil {
		return solanago.PublicKey{}
	}
	if err != nil {
		p.err = fmt.Errorf("derive %s: %w", name, err)
		return solanago.PublicKey{}
	}
	return p.key(name, addr)
}

func (b *Builder) tradeAccounts(req Request, creator string) (tradeAccounts, error) {
	var p keyParser
	a := tradeAccounts{
		program:        p.key("program", b.programID),
		global:         p.key("global", b.global),
		feeRecipient:   p.key("fee recipient", req.FeeRecipient),
		mint:           p.key("mint", req.Mint),
		user:           p.key("user", req.User),
		eventAuthority: p.key("event authority", b.eventAuthority),
		globalVolume:   p.key("global volume accumulator", b.globalVolume),
		feeConfig:      p.key("fee config", b.feeConfig),
	}

	if req.BondingCurve != "" {
		a.curve = p.key("bonding curve", req.BondingCurve)
	} else {
		addr, err := wire.BondingCurveAddress(b.programID, req.Mint)
		a.curve = p.derived("bonding curve", addr, err)
	}
	if req.AssociatedCurve != "" {
		a.assocCurve = p.key("associated bonding curve", req.AssociatedCurve)
	} else if p.err == nil {
		addr, err := wire.AssociatedTokenAddress(a.curve.String(), req.Mint)
		a.assocCurve = p.derived("associated bonding curve", addr, err)
	}
	if p.err == nil {
		addr, err := wire.AssociatedTokenAddress(req.User, req.Mint)
		a.userATA = p.derived("user token account", addr, err)
	}
	addr, err := wire.CreatorVaultAddress(b.programID, creator)
	a.creatorVault = p.derived("creator vault", addr, err)
	addr, err = wire.UserVolumeAccumulatorAddress(b.programID, req.User)
	a.userVolume = p.derived("user volume accumulator", addr, err)

	return a, p.err
}

func (b *Builder) buyMetas(a tradeAccounts) solanago.AccountMetaSlice {
	return solanago.AccountMetaSlice{
		solanago.NewAccountMeta(a.global, false, false),
		solanago.NewAccountMeta(a.feeRecipient, true, false),
		solanago.NewAccountMeta(a.mint, false, false),
		solanago.NewAccountMeta(a.curve, true, false),
		solanago.NewAccountMeta(a.assocCurve, true, false),
		solanago.NewAccountMeta(a.userATA, true, false),
		solanago.NewAccountMeta(a.user, true, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
		solanago.NewAccountMeta(solanago.TokenProgramID, false, false),
		solanago.NewAccountMeta(a.creatorVault, true, false),
		solanago.NewAccountMeta(a.eventAuthority, false, false),
		solanago.NewAccountMeta(a.program, false, false),
		solanago.NewAccountMeta(a.globalVolume, true, false),
		solanago.NewAccountMeta(a.userVolume, true, false),
		solanago.NewAccountMeta(a.feeConfig, false, false),
		solanago.NewAccountMeta(solanago.MustPublicKeyFromBase58(wire.FeeProgramID), false, false),
	}
}

func (b *Builder) sellMetas(a tradeAccounts) solanago.AccountMetaSlice {
	return solanago.AccountMetaSlice{
		solanago.NewAccountMeta(a.global, false, false),
		solanago.NewAccountMeta(a.feeRecipient, true, false),
		solanago.NewAccountMeta(a.mint, false, false),
		solanago.NewAccountMeta(a.curve, true, false),
		solanago.NewAccountMeta(a.assocCurve, true, false),
		solanago.NewAccountMeta(a.userATA, true, false),
		solanago.NewAccountMeta(a.user, true, true),
		solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
		solanago.NewAccountMeta(a.creatorVault, true, false),
		solanago.NewAccountMeta(solanago.TokenProgramID, false, false),
		solanago.NewAccountMeta(a.eventAuthority, false, false),
		solanago.NewAccountMeta(a.program, false, false),
		solanago.NewAccountMeta(a.feeConfig, false, false),
		solanago.NewAccountMeta(solanago.MustPublicKeyFromBase58(wire.FeeProgramID), false, false),
	}
}

// createATAIdempotent creates the user's token account unless it exists.
func createATAIdempotent(a tradeAccounts) solanago.Instruction {
	return solanago.NewInstruction(
		solanago.SPLAssociatedTokenAccountProgramID,
		solanago.AccountMetaSlice{
			solanago.NewAccountMeta(a.user, true, true),
			solanago.NewAccountMeta(a.userATA, true, false),
			solanago.NewAccountMeta(a.user, false, false),
			solanago.NewAccountMeta(a.mint, false, false),
			solanago.NewAccountMeta(solanago.SystemProgramID, false, false),
			solanago.NewAccountMeta(solanago.TokenProgramID, false, false),
		},
		ataCreateIdempotent,
	)
}
