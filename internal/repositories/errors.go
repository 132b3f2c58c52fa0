package repositories

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates malformed or missing input; nothing is retried.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the actor is not the message's sender.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the referenced message is absent.
	ErrNotFound = errors.New("message not found")
	// ErrStorageUnavailable indicates a transient backing-store failure; the
	// whole operation is safe to retry.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
