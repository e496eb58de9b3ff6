package rating

import (
	"errors"
	"fmt"
)

// AuthError means the carrier rejected the account's credentials or they are
// missing. It fails identically for every shipment of the account.
type AuthError struct {
	AccountID string
	Status    int
	Err       error
}

func (e *AuthError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("carrier auth failed for account %s (status %d): %v", e.AccountID, e.Status, e.Err)
	}
	return fmt.Sprintf("carrier auth failed for account %s: %v", e.AccountID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransientError covers timeouts, 5xx and 429 responses; eligible for retry.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("carrier temporarily unavailable (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("carrier temporarily unavailable: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// NotFoundError means the carrier has no rate for the lane, weight or service.
type NotFoundError struct {
	ServiceCode string
	Status      int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no carrier rate for service %q (status %d)", e.ServiceCode, e.Status)
}

// MalformedError means a response could not be interpreted.
type MalformedError struct {
	ServiceCode string
	Status      int
	Reason      string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("unusable carrier response for service %q (status %d): %s", e.ServiceCode, e.Status, e.Reason)
}

// IsAuth reports whether err is an AuthError.
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsTransient reports whether err is a TransientError.
func IsTransient(err error) bool {
	var target *TransientError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
