package auth

import (
	"context"
	"time"
)

// AccountStore describes persistence operations over credential records.
type AccountStore interface {
	Create(ctx context.Context, acc *Account) error
	Find(ctx context.Context, id string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	// List returns accounts filtered by approval status; empty means all.
	List(ctx context.Context, status string) ([]*Account, error)
	Update(ctx context.Context, id string, upd AccountUpdate) (*Account, error)
	Delete(ctx context.Context, id string) error

	// RecordFailure increments the failure counter and decides the lockout in
	// one atomic conditional update; separate read-then-write calls lose
	// increments under concurrent attempts.
	RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (attempts int, lockedUntil *time.Time, err error)
	// RecordSuccess resets the counter to zero and clears locked_until.
	RecordSuccess(ctx context.Context, id string) error
}

// AccountUpdate carries optional field updates; nil means leave unchanged.
type AccountUpdate struct {
	Username       *string
	Email          *string
	PasswordHash   *string
	Role           *string
	ApprovalStatus *string
}

// RefreshSessionStore persists opaque refresh sessions. Expired rows are
// deleted lazily when presented, never swept in the background.
type RefreshSessionStore interface {
	Create(ctx context.Context, s *RefreshSession) error
	Find(ctx context.Context, token string) (*RefreshSession, error)
	Delete(ctx context.Context, token string) error
}

// RevocationList is the persisted set of access tokens invalidated before
// their natural expiry.
type RevocationList interface {
	// Revoke is idempotent; ttl bounds how long the entry must be retained.
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// OwnerStore fetches the owner column value of a single record.
type OwnerStore interface {
	RecordOwner(ctx context.Context, rule OwnershipRule, recordID string) (string, error)
}
