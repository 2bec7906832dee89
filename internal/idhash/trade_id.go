package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(mint|side|signature|timestamp_ms)
// Returns hex-encoded hash (64 characters).
func ComputeTradeID(
	mint string,
	side string,
	signature string,
	timestampMs int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		mint,
		side,
		signature,
		timestampMs,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
