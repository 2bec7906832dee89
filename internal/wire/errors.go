package wire

import (
	"errors"
	"fmt"
)

// ErrNoCreate is returned when a transaction carries no create instruction
// for the monitored program.
var ErrNoCreate = errors.New("no create instruction")

// DecodeError reports malformed wire data.
type DecodeError struct {
	Op     string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %s", e.Op, e.Reason)
}

func decodeErr(op, format string, args ...any) error {
	return &DecodeError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsDecodeError reports whether err wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}
