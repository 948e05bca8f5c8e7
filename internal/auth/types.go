package auth

import "time"

// Roles an account can carry. Authorization decisions are taken from the
// Policy table in rbac.go; super_admin is its explicit wildcard entry.
const (
	RoleMember     = "member"
	RoleStaff      = "staff"
	RoleAdmin      = "admin"
	RoleFinance    = "finance"
	RoleSuperAdmin = "super_admin"
)

// Approval states. An account is created PENDING and transitions once to
// APPROVED or REJECTED by an admin action; re-approval is idempotent.
const (
	ApprovalPending  = "PENDING"
	ApprovalApproved = "APPROVED"
	ApprovalRejected = "REJECTED"
)

// Account is the durable credential record.
type Account struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	Role           string     `json:"role"`
	ApprovalStatus string     `json:"approval_status"`
	FailedAttempts int        `json:"-"`
	LockedUntil    *time.Time `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// RefreshSession is a long-lived opaque credential used solely to mint new
// access tokens. The row is not rotated on refresh; it lives until logout
// deletes it or it expires naturally.
type RefreshSession struct {
	Token     string    `json:"-"`
	AccountID string    `json:"account_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Device    string    `json:"device,omitempty"`
}

// Expired reports whether the session is past its natural lifetime.
func (s *RefreshSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Principal is the verified identity attached to a request after
// authentication succeeds.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Privileged reports whether the principal bypasses per-record ownership
// checks.
func (p Principal) Privileged() bool {
	switch p.Role {
	case RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// ValidRole reports whether role is one of the enumerated account roles.
func ValidRole(role string) bool {
	switch role {
	case RoleMember, RoleStaff, RoleAdmin, RoleFinance, RoleSuperAdmin:
		return true
	}
	return false
}

// ValidApprovalStatus reports whether status is one of the enumerated states.
func ValidApprovalStatus(status string) bool {
	switch status {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}
