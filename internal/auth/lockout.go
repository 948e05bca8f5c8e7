package auth

import (
	"context"
	"math"
	"time"
)

// LockoutGuard tracks consecutive failed logins per account and enforces a
// timed lock. The counter lives on the account row; the increment-and-decide
// step is delegated to the store's atomic conditional update.
type LockoutGuard struct {
	store     AccountStore
	threshold int
	duration  time.Duration
	now       func() time.Time
}

func NewLockoutGuard(store AccountStore, threshold int, duration time.Duration) *LockoutGuard {
	return &LockoutGuard{
		store:     store,
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// Check is evaluated strictly before credential comparison: a correct
// password on a locked account yields a lockout outcome, not a success.
func (g *LockoutGuard) Check(acc *Account) error {
	if acc.LockedUntil == nil {
		return nil
	}
	remaining := acc.LockedUntil.Sub(g.now())
	if remaining <= 0 {
		return nil
	}
	return &LockedError{RemainingMinutes: int(math.Ceil(remaining.Minutes()))}
}

// RecordFailure increments the counter and reports whether this attempt
// tripped the lock.
func (g *LockoutGuard) RecordFailure(ctx context.Context, acc *Account) (locked bool, err error) {
	attempts, lockedUntil, err := g.store.RecordFailure(ctx, acc.ID, g.threshold, g.duration)
	if err != nil {
		return false, err
	}
	acc.FailedAttempts = attempts
	acc.LockedUntil = lockedUntil
	return lockedUntil != nil && lockedUntil.After(g.now()) && attempts >= g.threshold, nil
}

// RecordSuccess resets the counter and clears the lock.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, acc *Account) error {
	if err := g.store.RecordSuccess(ctx, acc.ID); err != nil {
		return err
	}
	acc.FailedAttempts = 0
	acc.LockedUntil = nil
	return nil
}
