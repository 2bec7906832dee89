package solana

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotVisible means the node cannot serve the requested item yet.
var ErrNotVisible = errors.New("not yet visible")

// TransientNetworkError is a failure worth retrying: transport errors,
// throttling, server errors, or a node that has not caught up.
type TransientNetworkError struct {
	Op         string
	StatusCode int // HTTP status, 0 when not applicable
	Code       int // JSON-RPC error code, 0 when not applicable
	Err        error
}

func (e *TransientNetworkError) Error() string {
	switch {
	case e.Code != 0:
		return fmt.Sprintf("%s: transient rpc error %d: %v", e.Op, e.Code, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: transient http status %d: %v", e.Op, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// TerminalRPCError is a failure that retrying will not fix.
type TerminalRPCError struct {
	Op         string
	StatusCode int
	Code       int
	Message    string
	Data       json.RawMessage
}

func (e *TerminalRPCError) Error() string {
	if e.StatusCode != 0 && e.Code == 0 {
		return fmt.Sprintf("%s: http status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: RPC error %d: %s", e.Op, e.Code, e.Message)
}

// JSON-RPC codes reported by nodes that are behind or missing data.
var transientRPCCodes = map[int]bool{
	-32004: true, // block not available
	-32005: true, // node unhealthy
	-32007: true, // slot skipped
	-32014: true, // block status not yet available
	-32016: true, // minimum context slot not reached
}

func classifyRPCError(op string, e *rpcError) error {
	if transientRPCCodes[e.Code] {
		return &TransientNetworkError{Op: op, Code: e.Code, Err: errors.New(e.Message)}
	}
	return &TerminalRPCError{Op: op, Code: e.Code, Message: e.Message, Data: e.Data}
}

// IsRetryable reports whether err is a TransientNetworkError.
func IsRetryable(err error) bool {
	var t *TransientNetworkError
	return errors.As(err, &t)
}

// IsBlockhashNotFound reports whether err is a rejection for an unknown or
// expired blockhash.
func IsBlockhashNotFound(err error) bool {
	var t *TerminalRPCError
	if !errors.As(err, &t) {
		return false
	}
	return strings.Contains(t.Message, "Blockhash not found") ||
		strings.Contains(string(t.Data), "BlockhashNotFound")
}
