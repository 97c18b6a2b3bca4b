package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated means no caller identity was supplied.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrAlreadyParticipatedToday means a mandatory challenge was already joined today.
	ErrAlreadyParticipatedToday = errors.New("already participated today")
	// ErrChallengeNotFound means the challenge row does not exist.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrChallengeClosed means the challenge no longer accepts participations.
	ErrChallengeClosed = errors.New("challenge closed")
	// ErrUnknownChallengeType is returned by ParseChallengeType.
	ErrUnknownChallengeType = errors.New("unknown challenge type")
)

// StoreError wraps a failed read or write against the document store.
// It is surfaced verbatim; the ledger never retries.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeFailure(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}
