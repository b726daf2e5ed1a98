package refundd

import (
	"errors"
	"fmt"

	"refundkeeper/native/lovelace"
)

var (
	// ErrLookupFailed marks a ledger lookup failure. It only affects the
	// address being verified; the address stays pending for the next run.
	ErrLookupFailed = errors.New("refundd: ledger lookup failed")

	// ErrInsufficientBalance indicates the wallet cannot cover a verified batch.
	ErrInsufficientBalance = errors.New("refundd: insufficient wallet balance")

	// ErrSubmissionFailed indicates the wallet rejected the refund transaction
	// or did not report a transaction id. Affected addresses remain processing.
	ErrSubmissionFailed = errors.New("refundd: payment submission failed")
)

// LookupError wraps a ledger failure for a single address.
type LookupError struct {
	Address string
	Err     error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("refundd: ledger lookup for %s: %v", e.Address, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Is reports ErrLookupFailed so callers can classify the failure.
func (e *LookupError) Is(target error) bool { return target == ErrLookupFailed }

// InsufficientBalanceError reports the wallet balance that failed to cover a batch.
type InsufficientBalanceError struct {
	Available lovelace.Lovelace
	Required  lovelace.Lovelace
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("Balance of %d is not enough to refund %d", e.Available, e.Required)
}

// Is reports ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// SubmissionError describes a refund transaction the wallet did not accept.
type SubmissionError struct {
	Addresses []string
	Err       error
}

func (e *SubmissionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("refundd: wallet returned no transaction id for %d refunds", len(e.Addresses))
	}
	return fmt.Sprintf("refundd: submit payment for %d refunds: %v", len(e.Addresses), e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// Is reports ErrSubmissionFailed.
func (e *SubmissionError) Is(target error) bool { return target == ErrSubmissionFailed }
