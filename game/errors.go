package game

import (
	"errors"
	"fmt"

	"votelynch/store"
)

// Error kinds returned by every core operation. Handlers classify with
// errors.Is. ErrNotFound exists so callers inside the core can tell a
// missing row from a denied one, but the HTTP layer reports both as
// forbidden so existence of other people's games is never leaked.
var (
	ErrValidation   = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict, retry")
	ErrTransient    = errors.New("storage unavailable")
)

// storageErr wraps an unexpected store failure as a retryable
// transient error.
func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// raceErr maps a lost optimistic write to the retryable conflict kind.
func raceErr(err error) error {
	if errors.Is(err, store.ErrStale) || errors.Is(err, store.ErrDuplicate) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return storageErr(err)
}
