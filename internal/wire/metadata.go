package wire

// metadataKeyV1 tags a Metaplex MetadataV1 account.
const metadataKeyV1 = 4

// MetaplexMetadata is the head of a Metaplex metadata account.
type MetaplexMetadata struct {
	UpdateAuthority string
	Mint            string
	Name            string
	Symbol          string
	URI             string
}

// ParseMetaplexMetadata decodes a Metaplex metadata account:
// key u8, update authority, mint, then borsh name, symbol and uri.
func ParseMetaplexMetadata(data []byte) (MetaplexMetadata, error) {
	const op = "metaplex metadata"
	r := newReader(op, data, 0)
	key, err := r.u8()
	if err != nil {
		return MetaplexMetadata{}, err
	}
	if key != metadataKeyV1 {
		return MetaplexMetadata{}, decodeErr(op, "unexpected key %d", key)
	}

	var m MetaplexMetadata
	if m.UpdateAuthority, err = r.pubkey(); err != nil {
		return MetaplexMetadata{}, err
	}
	if m.Mint, err = r.pubkey(); err != nil {
		return MetaplexMetadata{}, err
	}
	if m.Name, err = r.str(maxNameLen); err != nil {
		return MetaplexMetadata{}, err
	}
	if m.Symbol, err = r.str(maxSymbolLen); err != nil {
		return MetaplexMetadata{}, err
	}
	if m.URI, err = r.str(maxURILen); err != nil {
		return MetaplexMetadata{}, err
	}
	return m, nil
}

// EncodeMetaplexMetadata builds the head of a metadata account. Fixed-width
// fields are null padded the way the metadata program stores them.
func EncodeMetaplexMetadata(updateAuthority, mint []byte, name, symbol, uri string) []byte {
	out := []byte{metadataKeyV1}
	out = append(out, pad32(updateAuthority)...)
	out = append(out, pad32(mint)...)
	out = appendString(out, padRight(name, 32))
	out = appendString(out, padRight(symbol, 10))
	out = appendString(out, padRight(uri, 200))
	return out
}

func pad32(b []byte) []byte {
	out := make([]byte, 32)
	copy(out, b)
	return out
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + string(make([]byte, n-len(s)))
}
