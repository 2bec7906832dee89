package execution

import (
	"errors"
	"fmt"
)

var (
	// errExpired means the blockhash can no longer land the transaction.
	errExpired = errors.New("blockhash expired before confirmation")

	// ErrUnconfirmed means a submitted transaction was neither confirmed nor
	// proven expired. It may still land and is never resubmitted.
	ErrUnconfirmed = errors.New("transaction outcome unknown")

	// ErrSignerNotReady is returned before any network call when the signer
	// cannot sign.
	ErrSignerNotReady = errors.New("signer not ready")

	// ErrTipTooLow is returned when a relay submission carries less than the
	// relay's minimum tip.
	ErrTipTooLow = errors.New("tip below relay minimum")
)

// OrderFailedError reports an order that did not confirm.
type OrderFailedError struct {
	Attempts int
	Cause    error
}

func (e *OrderFailedError) Error() string {
	return fmt.Sprintf("order failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *OrderFailedError) Unwrap() error { return e.Cause }

// TransactionError is an on-chain execution failure.
type TransactionError struct {
	Signature string
	Err       interface{}
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}
