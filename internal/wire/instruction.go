package wire

// EncodeBuyArgs builds buy instruction data. trackVolume nil encodes None.
func EncodeBuyArgs(amount, maxSolCost uint64, trackVolume *bool) []byte {
	out := append(make([]byte, 0, 26), BuyDiscriminator[:]...)
	out = appendU64(out, amount)
	out = appendU64(out, maxSolCost)
	switch {
	case trackVolume == nil:
		out = append(out, 0)
	case *trackVolume:
		out = append(out, 1, 1)
	default:
		out = append(out, 1, 0)
	}
	return out
}

// EncodeSellArgs builds sell instruction data.
func EncodeSellArgs(amount, minSolOutput uint64) []byte {
	out := append(make([]byte, 0, 24), SellDiscriminator[:]...)
	out = appendU64(out, amount)
	return appendU64(out, minSolOutput)
}

// TradeArgs are the amounts of a buy or sell instruction.
type TradeArgs struct {
	Kind   InstructionKind
	Amount uint64
	Bound  uint64 // max cost for buys, min output for sells
}

// DecodeTradeArgs parses buy or sell instruction data.
func DecodeTradeArgs(data []byte) (TradeArgs, error) {
	kind := Classify(data)
	if kind != KindBuy && kind != KindSell {
		return TradeArgs{}, decodeErr("trade args", "not a buy or sell instruction")
	}
	r := newReader("trade args", data, 8)
	amount, err := r.u64()
	if err != nil {
		return TradeArgs{}, err
	}
	bound, err := r.u64()
	if err != nil {
		return TradeArgs{}, err
	}
	return TradeArgs{Kind: kind, Amount: amount, Bound: bound}, nil
}
