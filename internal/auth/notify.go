package auth

import (
	"context"

	"zhardem.org/internal/obs"
)

// Notifier is the best-effort side channel informing an account holder about
// an approval decision. Failures are logged and never roll back or block the
// state transition.
type Notifier interface {
	AccountApproved(ctx context.Context, acc *Account) error
	AccountRejected(ctx context.Context, acc *Account) error
}

// LogNotifier writes the notification to the service log. Used when no mail
// transport is configured.
type LogNotifier struct{}

func (LogNotifier) AccountApproved(_ context.Context, acc *Account) error {
	obs.Logger().Info().
		Str("account_id", acc.ID).
		Str("email", acc.Email).
		Msg("account approved notification")
	return nil
}

func (LogNotifier) AccountRejected(_ context.Context, acc *Account) error {
	obs.Logger().Info().
		Str("account_id", acc.ID).
		Str("email", acc.Email).
		Msg("account rejected notification")
	return nil
}
