// Package wire decodes and encodes the on-chain formats of the launch
// program: transactions, instruction data, account layouts and addresses.
package wire

import (
	"bytes"
	"crypto/sha256"
)

// InstructionKind classifies program instruction data.
type InstructionKind int

const (
	KindOther InstructionKind = iota
	KindCreate
	KindBuy
	KindSell
)

func (k InstructionKind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindBuy:
		return "buy"
	case KindSell:
		return "sell"
	default:
		return "other"
	}
}

// Discriminator returns the first 8 bytes of sha256("namespace:name").
func Discriminator(namespace, name string) [8]byte {
	sum := sha256.Sum256([]byte(namespace + ":" + name))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// Static discriminator registry.
var (
	CreateDiscriminator = [8]byte{24, 30, 200, 40, 5, 28, 7, 119}
	BuyDiscriminator    = [8]byte{102, 6, 61, 18, 1, 218, 235, 234}
	SellDiscriminator   = [8]byte{51, 230, 133, 164, 1, 127, 131, 173}

	BondingCurveDiscriminator = Discriminator("account", "BondingCurve")
	GlobalDiscriminator       = Discriminator("account", "Global")
)

// Classify returns the instruction kind for raw instruction data.
func Classify(data []byte) InstructionKind {
	if len(data) < 8 {
		return KindOther
	}
	switch {
	case bytes.Equal(data[:8], CreateDiscriminator[:]):
		return KindCreate
	case bytes.Equal(data[:8], BuyDiscriminator[:]):
		return KindBuy
	case bytes.Equal(data[:8], SellDiscriminator[:]):
		return KindSell
	}
	return KindOther
}
