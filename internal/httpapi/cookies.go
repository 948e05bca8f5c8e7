package httpapi

import (
	"net/http"
	"time"

	"zhardem.org/internal/auth"
)

const (
	accessCookieName  = "access_token"
	refreshCookieName = "refresh_token"

	// The refresh cookie is scoped to the auth endpoints only; the browser
	// never sends the long-lived credential to record routes.
	refreshCookiePath = "/v1/auth"
)

// CookieConfig carries the deployment-driven cookie policy.
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
}

// DefaultCookieConfig returns the cookie policy for an environment:
// Secure+Strict in production, Lax otherwise.
func DefaultCookieConfig(production bool) CookieConfig {
	if production {
		return CookieConfig{Secure: true, SameSite: http.SameSiteStrictMode}
	}
	return CookieConfig{Secure: false, SameSite: http.SameSiteLaxMode}
}

func (c CookieConfig) setAccessCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.Domain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c CookieConfig) setRefreshCookie(w http.ResponseWriter, session *auth.RefreshSession) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    session.Token,
		Path:     refreshCookiePath,
		Domain:   c.Domain,
		Expires:  session.ExpiresAt,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c CookieConfig) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name: accessCookieName, Value: "", Path: "/", Domain: c.Domain,
		MaxAge: -1, HttpOnly: true, Secure: c.Secure, SameSite: c.SameSite,
	})
	http.SetCookie(w, &http.Cookie{
		Name: refreshCookieName, Value: "", Path: refreshCookiePath, Domain: c.Domain,
		MaxAge: -1, HttpOnly: true, Secure: c.Secure, SameSite: c.SameSite,
	})
}
