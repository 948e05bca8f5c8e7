package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: already exists")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrPendingApproval    = errors.New("auth: account awaiting approval")
	ErrRejected           = errors.New("auth: account rejected by admin")
	ErrDependentRecords   = errors.New("auth: dependent records exist")
)

// LockedError is returned when an account is under a brute-force lockout.
// RemainingMinutes is rounded up so the caller never understates the wait.
type LockedError struct {
	RemainingMinutes int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("auth: account locked, try again in %d minutes", e.RemainingMinutes)
}
