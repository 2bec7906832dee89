package wire

import (
	"bytes"

	"github.com/mr-tron/base58"
)

// Global is the subset of the program's global config account the trader needs.
type Global struct {
	Initialized  bool
	Authority    string
	FeeRecipient string
}

const globalMinLen = 73

// DecodeGlobal decodes the program's global account.
func DecodeGlobal(data []byte) (Global, error) {
	const op = "global"
	if len(data) < globalMinLen {
		return Global{}, decodeErr(op, "account too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], GlobalDiscriminator[:]) {
		return Global{}, decodeErr(op, "unexpected account discriminator %x", data[:8])
	}
	return Global{
		Initialized:  data[8] != 0,
		Authority:    base58.Encode(data[9:41]),
		FeeRecipient: base58.Encode(data[41:73]),
	}, nil
}

// EncodeGlobal lays out a global account with the given keys.
func EncodeGlobal(authority, feeRecipient []byte) []byte {
	out := make([]byte, globalMinLen)
	copy(out, GlobalDiscriminator[:])
	out[8] = 1
	copy(out[9:41], authority)
	copy(out[41:73], feeRecipient)
	return out
}
