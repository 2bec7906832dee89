package wire

import (
	"encoding/binary"
	"strings"

	"github.com/mr-tron/base58"
)

// reader walks little-endian borsh fields and stops at the first short read.
type reader struct {
	op  string
	buf []byte
	off int
}

func newReader(op string, buf []byte, off int) *reader {
	return &reader{op: op, buf: buf, off: off}
}

func (r *reader) need(n int) error {
	if n < 0 || r.off+n > len(r.buf) {
		return decodeErr(r.op, "need %d bytes at offset %d, have %d", n, r.off, len(r.buf))
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) pubkey() (string, error) {
	if err := r.need(32); err != nil {
		return "", err
	}
	v := base58.Encode(r.buf[r.off : r.off+32])
	r.off += 32
	return v, nil
}

// str reads a u32-prefixed string no longer than limit bytes.
func (r *reader) str(limit int) (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	if int64(n) > int64(limit) {
		return "", decodeErr(r.op, "string length %d exceeds %d", n, limit)
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	v := strings.TrimRight(string(r.buf[r.off:r.off+int(n)]), "\x00")
	r.off += int(n)
	return v, nil
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func appendU64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

func appendString(b []byte, s string) []byte {
	b = binary.LittleEndian.AppendUint32(b, uint32(len(s)))
	return append(b, s...)
}
