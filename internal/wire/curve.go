package wire

import (
	"bytes"
	"encoding/binary"

	"github.com/mr-tron/base58"

	"solana-launch-sniper/internal/domain"
)

// Bonding curve account layout.
const (
	curveMinLen  = 49 // through the complete flag
	curveFullLen = 81 // with creator
)

// DecodeCurve decodes a bonding curve account. Accounts created before the
// creator field existed decode with an empty Creator.
func DecodeCurve(data []byte) (domain.CurveState, error) {
	const op = "bonding curve"
	if len(data) < curveMinLen {
		return domain.CurveState{}, decodeErr(op, "account too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], BondingCurveDiscriminator[:]) {
		return domain.CurveState{}, decodeErr(op, "unexpected account discriminator %x", data[:8])
	}

	s := domain.CurveState{
		VirtualTokenReserves: binary.LittleEndian.Uint64(data[8:16]),
		VirtualSolReserves:   binary.LittleEndian.Uint64(data[16:24]),
		RealTokenReserves:    binary.LittleEndian.Uint64(data[24:32]),
		RealSolReserves:      binary.LittleEndian.Uint64(data[32:40]),
		TokenTotalSupply:     binary.LittleEndian.Uint64(data[40:48]),
		Complete:             data[48] != 0,
	}
	if len(data) >= curveFullLen {
		s.Creator = base58.Encode(data[49:81])
	}
	return s, nil
}

// EncodeCurve lays out s as a bonding curve account. An invalid Creator is
// written as zeroes.
func EncodeCurve(s domain.CurveState) []byte {
	out := make([]byte, 0, curveFullLen)
	out = append(out, BondingCurveDiscriminator[:]...)
	out = appendU64(out, s.VirtualTokenReserves)
	out = appendU64(out, s.VirtualSolReserves)
	out = appendU64(out, s.RealTokenReserves)
	out = appendU64(out, s.RealSolReserves)
	out = appendU64(out, s.TokenTotalSupply)
	if s.Complete {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	creator := make([]byte, 32)
	if s.Creator != "" {
		if b, err := base58.Decode(s.Creator); err == nil && len(b) == 32 {
			copy(creator, b)
		}
	}
	return append(out, creator...)
}
