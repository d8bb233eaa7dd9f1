package ledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's failure taxonomy. Validation-kind errors
// are terminal for a transaction: it is recorded Rejected with the matching
// reason code and never retried automatically. Infrastructure-kind errors
// (ErrLockTimeout, ErrCommitFailed) leave the transaction undecided and are
// safe to retry with the same idempotency key.
var (
	// Validation-kind errors.
	ErrInvalidAmount     = errors.New("ledger: invalid amount")
	ErrCurrencyMismatch  = errors.New("ledger: currency mismatch")
	ErrAccountNotActive  = errors.New("ledger: account not active")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrNotFound          = errors.New("ledger: not found")
	ErrAlreadyTokenized  = errors.New("ledger: holding already tokenized")
	ErrCustodyHeld       = errors.New("ledger: holding already has an active custody receipt")
	ErrInvalidState      = errors.New("ledger: entity state does not allow this operation")
	ErrNotOwner          = errors.New("ledger: caller is not the recorded owner")
	ErrReceiptAllocation = errors.New("ledger: receipt number allocation failed")

	// Infrastructure-kind errors.
	ErrLockTimeout  = errors.New("ledger: lock acquisition timed out")
	ErrCommitFailed = errors.New("ledger: commit failed")

	// Contract errors, reported to the caller before anything is staged.
	ErrInvalidRequest = errors.New("ledger: invalid request")
	ErrAlreadyExists  = errors.New("ledger: already exists")
)

// Reason is a stable, machine-checkable rejection code recorded on a
// transaction alongside the human-readable message.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInvalidAmount     Reason = "invalid_amount"
	ReasonCurrencyMismatch  Reason = "currency_mismatch"
	ReasonAccountNotActive  Reason = "account_not_active"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonNotFound          Reason = "not_found"
	ReasonAlreadyTokenized  Reason = "already_tokenized"
	ReasonCustodyHeld       Reason = "custody_held"
	ReasonInvalidState      Reason = "invalid_state"
	ReasonNotOwner          Reason = "not_owner"
	ReasonReceiptAllocation Reason = "receipt_allocation_failed"
)

// ReasonOf maps a validation error to its reason code. It returns ReasonNone
// for infrastructure errors and for nil.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrInvalidAmount):
		return ReasonInvalidAmount
	case errors.Is(err, ErrCurrencyMismatch):
		return ReasonCurrencyMismatch
	case errors.Is(err, ErrAccountNotActive):
		return ReasonAccountNotActive
	case errors.Is(err, ErrInsufficientFunds):
		return ReasonInsufficientFunds
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrAlreadyTokenized):
		return ReasonAlreadyTokenized
	case errors.Is(err, ErrCustodyHeld):
		return ReasonCustodyHeld
	case errors.Is(err, ErrInvalidState):
		return ReasonInvalidState
	case errors.Is(err, ErrNotOwner):
		return ReasonNotOwner
	case errors.Is(err, ErrReceiptAllocation):
		return ReasonReceiptAllocation
	default:
		return ReasonNone
	}
}

// IsRejection reports whether err is a validation-kind error, i.e. one that
// decides a transaction as Rejected.
func IsRejection(err error) bool {
	return ReasonOf(err) != ReasonNone
}

// IsRetryable reports whether err is an infrastructure-kind error the caller
// may retry with the same idempotency key.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrCommitFailed)
}

func errNotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
