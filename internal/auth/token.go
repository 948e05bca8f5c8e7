package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const minSecretBytes = 32

// Claims are the verified contents of an access token. Baseline validity is
// decided from signature and expiry alone; no store lookup is required.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints short-lived signed access tokens and opaque refresh sessions.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// IssuerOption configures Issuer behavior.
type IssuerOption func(*Issuer)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer. A missing or short signing secret is a
// fatal startup condition, not a per-request error.
func NewIssuer(secret, issuer string, accessTTL, refreshTTL time.Duration, opts ...IssuerOption) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSecretBytes {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretBytes)
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	i := &Issuer{
		secret:     []byte(secret),
		issuer:     strings.TrimSpace(issuer),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// AccessToken signs an HS256 JWT carrying the account's id, email and role.
func (i *Issuer) AccessToken(acc *Account) (string, time.Time, error) {
	if acc == nil || strings.TrimSpace(acc.ID) == "" {
		return "", time.Time{}, errors.New("account is required")
	}
	now := i.now().UTC()
	exp := now.Add(i.accessTTL)
	claims := Claims{
		Email: acc.Email,
		Role:  acc.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   acc.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature and registered claims of an access token.
func (i *Issuer) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now() }))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// RemainingLifetime returns how long a token stays structurally valid. Used
// to size revocation entries so the list self-prunes at natural expiry.
// Unverifiable tokens fall back to the full access TTL.
func (i *Issuer) RemainingLifetime(token string) time.Duration {
	claims, err := i.Verify(token)
	if err != nil || claims.ExpiresAt == nil {
		return i.accessTTL
	}
	remaining := claims.ExpiresAt.Time.Sub(i.now())
	if remaining <= 0 {
		return time.Second
	}
	return remaining
}

// RefreshSession generates a cryptographically random opaque identifier with
// a multi-day expiry. Persisting the pair is the caller's job.
func (i *Issuer) RefreshSession(acc *Account, device string) (*RefreshSession, error) {
	if acc == nil || strings.TrimSpace(acc.ID) == "" {
		return nil, errors.New("account is required")
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	now := i.now().UTC()
	return &RefreshSession{
		Token:     base64.RawURLEncoding.EncodeToString(raw),
		AccountID: acc.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.refreshTTL),
		Device:    strings.TrimSpace(device),
	}, nil
}
