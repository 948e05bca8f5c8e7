package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"zhardem.org/internal/ids"
	"zhardem.org/internal/obs"
)

const notifyTimeout = 5 * time.Second

// Service orchestrates credential issuance, the dual-token session
// lifecycle, revocation, lockout and the approval gate.
type Service struct {
	accounts AccountStore
	sessions RefreshSessionStore
	revoked  RevocationList
	issuer   *Issuer
	lockout  *LockoutGuard
	policy   *Policy
	notifier Notifier

	bcryptCost int
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithNotifier overrides the approval notification channel.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithPolicy overrides the authorization table.
func WithPolicy(p *Policy) ServiceOption {
	return func(s *Service) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithBcryptCost sets the password hashing work factor.
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) {
		if cost > 0 {
			s.bcryptCost = cost
		}
	}
}

// WithServiceClock overrides the time source (useful for tests).
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the subsystem together.
func NewService(accounts AccountStore, sessions RefreshSessionStore, revoked RevocationList, issuer *Issuer, lockout *LockoutGuard, opts ...ServiceOption) (*Service, error) {
	if accounts == nil || sessions == nil || revoked == nil || issuer == nil || lockout == nil {
		return nil, errors.New("all auth service collaborators are required")
	}
	s := &Service{
		accounts: accounts,
		sessions: sessions,
		revoked:  revoked,
		issuer:   issuer,
		lockout:  lockout,
		policy:   DefaultPolicy(),
		notifier: LogNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a PENDING account. The role defaults to member; the
// approval status is always forced to PENDING regardless of input.
func (s *Service) Register(ctx context.Context, username, email, password, role string) (*Account, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(strings.ToLower(email))
	if username == "" || email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidInput
	}
	if password == "" {
		return nil, ErrInvalidInput
	}
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		role = RoleMember
	}
	if !ValidRole(role) {
		return nil, ErrInvalidInput
	}
	hash, err := HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	acc := &Account{
		ID:             ids.New(),
		Username:       username,
		Email:          email,
		PasswordHash:   hash,
		Role:           role,
		ApprovalStatus: ApprovalPending,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// LoginResult carries everything a transport needs to establish the session.
type LoginResult struct {
	Account         *Account
	AccessToken     string
	AccessExpiresAt time.Time
	Session         *RefreshSession
}

// Login runs the gate chain in its contractual order: approval gate, then
// lockout check, then credential comparison. A correct password never
// shortcuts an earlier gate.
func (s *Service) Login(ctx context.Context, email, password, device string) (*LoginResult, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	acc, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	switch acc.ApprovalStatus {
	case ApprovalApproved:
	case ApprovalRejected:
		return nil, ErrRejected
	default:
		return nil, ErrPendingApproval
	}

	if err := s.lockout.Check(acc); err != nil {
		return nil, err
	}

	if err := VerifyPassword(acc.PasswordHash, password); err != nil {
		locked, ferr := s.lockout.RecordFailure(ctx, acc)
		if ferr != nil {
			return nil, ferr
		}
		if locked {
			obs.ObserveLockout()
			return nil, s.lockout.Check(acc)
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.lockout.RecordSuccess(ctx, acc); err != nil {
		return nil, err
	}

	access, accessExp, err := s.issuer.AccessToken(acc)
	if err != nil {
		return nil, err
	}
	session, err := s.issuer.RefreshSession(acc, device)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return &LoginResult{
		Account:         acc,
		AccessToken:     access,
		AccessExpiresAt: accessExp,
		Session:         session,
	}, nil
}

// Refresh mints a new access token against an existing refresh session. The
// session row itself is left untouched; it is only deleted when presented
// past its expiry.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, *Account, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return "", time.Time{}, nil, ErrInvalidInput
	}
	session, err := s.sessions.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, nil, ErrInvalidToken
		}
		return "", time.Time{}, nil, err
	}
	if session.Expired(s.now()) {
		_ = s.sessions.Delete(ctx, refreshToken)
		return "", time.Time{}, nil, ErrInvalidToken
	}
	acc, err := s.accounts.Find(ctx, session.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", time.Time{}, nil, ErrInvalidToken
		}
		return "", time.Time{}, nil, err
	}
	// An account rejected or un-approved after login must not keep minting
	// access tokens from a surviving refresh session.
	if acc.ApprovalStatus != ApprovalApproved {
		return "", time.Time{}, nil, ErrInvalidToken
	}
	access, exp, err := s.issuer.AccessToken(acc)
	if err != nil {
		return "", time.Time{}, nil, err
	}
	return access, exp, acc, nil
}

// Logout deletes the matching refresh session row and revokes exactly the
// access token presented at this call.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	if refreshToken != "" {
		if err := s.sessions.Delete(ctx, refreshToken); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if accessToken != "" {
		if err := s.revoked.Revoke(ctx, accessToken, s.issuer.RemainingLifetime(accessToken)); err != nil {
			return err
		}
		obs.ObserveRevocation()
	}
	return nil
}

// Authenticate validates a presented access token: revocation membership is
// checked first, independent of cryptographic verification.
func (s *Service) Authenticate(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, ErrUnauthorized
	}
	revoked, err := s.revoked.IsRevoked(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, ErrInvalidToken
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return Principal{}, ErrInvalidToken
	}
	return Principal{ID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// Authorize evaluates the role×verb table.
func (s *Service) Authorize(role, verb string) Decision {
	return s.policy.Authorize(role, verb)
}

// Account returns one account by id.
func (s *Service) Account(ctx context.Context, id string) (*Account, error) {
	return s.accounts.Find(ctx, id)
}

// Accounts lists accounts, optionally filtered by approval status.
func (s *Service) Accounts(ctx context.Context, status string) ([]*Account, error) {
	if status != "" && !ValidApprovalStatus(status) {
		return nil, ErrInvalidInput
	}
	return s.accounts.List(ctx, status)
}

// Pending lists accounts awaiting an approval decision.
func (s *Service) Pending(ctx context.Context) ([]*Account, error) {
	return s.accounts.List(ctx, ApprovalPending)
}

// Approve transitions an account to APPROVED. Re-approving is idempotent;
// the notification fires only on an actual transition and never blocks it.
func (s *Service) Approve(ctx context.Context, id string) (*Account, error) {
	return s.transition(ctx, id, ApprovalApproved)
}

// Reject transitions an account to REJECTED, which ends login eligibility
// until an explicit re-approval.
func (s *Service) Reject(ctx context.Context, id string) (*Account, error) {
	return s.transition(ctx, id, ApprovalRejected)
}

func (s *Service) transition(ctx context.Context, id, status string) (*Account, error) {
	acc, err := s.accounts.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.ApprovalStatus == status {
		return acc, nil
	}
	updated, err := s.accounts.Update(ctx, id, AccountUpdate{ApprovalStatus: &status})
	if err != nil {
		return nil, err
	}
	s.notifyAsync(updated, status)
	return updated, nil
}

func (s *Service) notifyAsync(acc *Account, status string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		var err error
		switch status {
		case ApprovalApproved:
			err = s.notifier.AccountApproved(ctx, acc)
		case ApprovalRejected:
			err = s.notifier.AccountRejected(ctx, acc)
		}
		if err != nil {
			obs.Logger().Warn().
				Err(err).
				Str("account_id", acc.ID).
				Str("status", status).
				Msg("approval notification failed")
		}
	}()
}

// UpdateRequest is a generic admin field update; a password is re-hashed,
// never stored raw.
type UpdateRequest struct {
	Username *string
	Email    *string
	Password *string
	Role     *string
}

// UpdateAccount applies an admin update to an account.
func (s *Service) UpdateAccount(ctx context.Context, id string, req UpdateRequest) (*Account, error) {
	upd := AccountUpdate{}
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		if trimmed == "" {
			return nil, ErrInvalidInput
		}
		upd.Username = &trimmed
	}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, ErrInvalidInput
		}
		upd.Email = &email
	}
	if req.Role != nil {
		role := strings.TrimSpace(strings.ToLower(*req.Role))
		if !ValidRole(role) {
			return nil, ErrInvalidInput
		}
		upd.Role = &role
	}
	if req.Password != nil {
		if *req.Password == "" {
			return nil, ErrInvalidInput
		}
		hash, err := HashPassword(*req.Password, s.bcryptCost)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}
	return s.accounts.Update(ctx, id, upd)
}

// DeleteAccount enforces the deletion rules before removing the target:
// never self, never a super_admin, and an admin may only delete members.
func (s *Service) DeleteAccount(ctx context.Context, actor Principal, targetID string) error {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return ErrInvalidInput
	}
	if targetID == actor.ID {
		return ErrForbidden
	}
	target, err := s.accounts.Find(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == RoleSuperAdmin {
		return ErrForbidden
	}
	if actor.Role == RoleAdmin && target.Role != RoleMember {
		return ErrForbidden
	}
	return s.accounts.Delete(ctx, targetID)
}
