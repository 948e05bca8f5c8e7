package httpapi

import (
	"net/http"
	"strings"

	"zhardem.org/internal/auth"
)

// publicPaths are served without a principal. Refresh authenticates with the
// refresh cookie instead of an access token.
var publicPaths = map[string]struct{}{
	"/healthz":          {},
	"/readyz":           {},
	"/metrics":          {},
	"/v1/info":          {},
	"/v1/auth/register": {},
	"/v1/auth/login":    {},
	"/v1/auth/refresh":  {},
}

// withAuth authenticates every non-public request. Revocation membership is
// checked before signature verification inside Authenticate; the resulting
// principal and the raw token travel in the request context.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		token := extractAccessToken(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		principal, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			handleAuthError(w, r, err)
			return
		}
		ctx := auth.ContextWithPrincipal(r.Context(), principal)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractAccessToken prefers the Authorization header and falls back to the
// access cookie set at login.
func extractAccessToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if c, err := r.Cookie(accessCookieName); err == nil {
		return c.Value
	}
	return ""
}

func principalOr401(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return p, true
}

// requireRole gates the admin account-management surface.
func requireRole(w http.ResponseWriter, r *http.Request, roles ...string) (auth.Principal, bool) {
	p, ok := principalOr401(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	for _, role := range roles {
		if p.Role == role {
			return p, true
		}
	}
	writeError(w, r, http.StatusForbidden, "forbidden")
	return auth.Principal{}, false
}

// requireVerb consults the role×verb table for record routes.
func (a *API) requireVerb(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := principalOr401(w, r)
	if !ok {
		return auth.Principal{}, false
	}
	if d := a.auth.Authorize(p.Role, r.Method); !d.Allow {
		writeError(w, r, http.StatusForbidden, d.Reason)
		return auth.Principal{}, false
	}
	return p, true
}
