package wire

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program ids.
const (
	SystemProgramID          = "11111111111111111111111111111111"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	FeeProgramID             = "pfeeUxB6jkeY1Hxd7CsFCAjcbHA9rWtchMGdZ6VojVZ"
)

const maxSeedLen = 32

// ErrNoViableBump is returned when every bump lands on the curve.
var ErrNoViableBump = errors.New("unable to find a viable program address bump seed")

// feeConfigSeed is the second seed of the fee config address.
var feeConfigSeed = []byte{1, 86, 224, 246, 147, 102, 90, 207, 68, 219, 21, 104, 191, 23, 91, 170, 81, 137, 203, 151, 245, 210, 255, 59, 101, 93, 43, 182, 253, 109, 24, 176}

// KeyBytes decodes a base58 public key.
func KeyBytes(key string) ([]byte, error) {
	b, err := base58.Decode(key)
	if err != nil {
		return nil, decodeErr("public key", "%q: %v", key, err)
	}
	if len(b) != 32 {
		return nil, decodeErr("public key", "%q: expected 32 bytes, got %d", key, len(b))
	}
	return b, nil
}

// FindProgramAddress derives the address and bump for seeds under programID.
// The first bump counting down from 255 whose hash is off the ed25519 curve wins.
func FindProgramAddress(seeds [][]byte, programID string) (string, uint8, error) {
	program, err := KeyBytes(programID)
	if err != nil {
		return "", 0, err
	}
	for _, s := range seeds {
		if len(s) > maxSeedLen {
			return "", 0, fmt.Errorf("seed length %d exceeds %d", len(s), maxSeedLen)
		}
	}

	for bump := byte(255); bump > 0; bump-- {
		h := sha256.New()
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{bump})
		h.Write(program)
		h.Write([]byte("ProgramDerivedAddress"))
		sum := h.Sum(nil)

		if !isOnCurve(sum) {
			return base58.Encode(sum), bump, nil
		}
	}
	return "", 0, ErrNoViableBump
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}

func derive(programID string, seeds ...[]byte) (string, error) {
	addr, _, err := FindProgramAddress(seeds, programID)
	return addr, err
}

func deriveWithKeys(programID string, prefix string, keys ...string) (string, error) {
	seeds := [][]byte{[]byte(prefix)}
	for _, k := range keys {
		b, err := KeyBytes(k)
		if err != nil {
			return "", err
		}
		seeds = append(seeds, b)
	}
	return derive(programID, seeds...)
}

// GlobalAddress is the program's global config account.
func GlobalAddress(program string) (string, error) {
	return derive(program, []byte("global"))
}

// BondingCurveAddress is the curve account of mint.
func BondingCurveAddress(program, mint string) (string, error) {
	return deriveWithKeys(program, "bonding-curve", mint)
}

// CreatorVaultAddress collects creator fees for creator.
func CreatorVaultAddress(program, creator string) (string, error) {
	return deriveWithKeys(program, "creator-vault", creator)
}

func EventAuthorityAddress(program string) (string, error) {
	return derive(program, []byte("__event_authority"))
}

func GlobalVolumeAccumulatorAddress(program string) (string, error) {
	return derive(program, []byte("global_volume_accumulator"))
}

func UserVolumeAccumulatorAddress(program, user string) (string, error) {
	return deriveWithKeys(program, "user_volume_accumulator", user)
}

// FeeConfigAddress is the fee program's config account for the launch program.
func FeeConfigAddress() (string, error) {
	return derive(FeeProgramID, []byte("fee_config"), feeConfigSeed)
}

// AssociatedTokenAddress is owner's token account for mint.
func AssociatedTokenAddress(owner, mint string) (string, error) {
	o, err := KeyBytes(owner)
	if err != nil {
		return "", err
	}
	m, err := KeyBytes(mint)
	if err != nil {
		return "", err
	}
	t, _ := KeyBytes(TokenProgramID)
	return derive(AssociatedTokenProgramID, o, t, m)
}

// MetadataAddress is the Metaplex metadata account of mint.
// Seeds: ["metadata", metadata program, mint].
func MetadataAddress(metadataProgram, mint string) (string, error) {
	p, err := KeyBytes(metadataProgram)
	if err != nil {
		return "", err
	}
	m, err := KeyBytes(mint)
	if err != nil {
		return "", err
	}
	return derive(metadataProgram, []byte("metadata"), p, m)
}
