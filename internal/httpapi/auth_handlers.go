package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"zhardem.org/internal/audit"
	"zhardem.org/internal/auth"
	"zhardem.org/internal/obs"
)

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	Role     string `json:"role" validate:"omitempty,oneof=member staff admin finance super_admin"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid input: "+validationMessage(err))
		return
	}
	acc, err := a.auth.Register(r.Context(), req.Username, req.Email, req.Password, req.Role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"account_id": acc.ID,
		"email":      acc.Email,
		"role":       acc.Role,
	})
	writeJSON(w, http.StatusCreated, acc)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Device   string `json:"device" validate:"omitempty,max=256"`
}

type loginResponse struct {
	Account     *auth.Account `json:"account"`
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid input: "+validationMessage(err))
		return
	}
	device := req.Device
	if device == "" {
		device = r.UserAgent()
	}
	res, err := a.auth.Login(r.Context(), req.Email, req.Password, device)
	if err != nil {
		var locked *auth.LockedError
		if errors.As(err, &locked) {
			obs.ObserveLogin("locked")
			_ = audit.LogEvent(r.Context(), "auth.lockout", map[string]any{
				"email":             req.Email,
				"remaining_minutes": locked.RemainingMinutes,
			})
		} else {
			obs.ObserveLogin("failure")
			_ = audit.LogEvent(r.Context(), "auth.login_failed", map[string]any{"email": req.Email})
		}
		handleAuthError(w, r, err)
		return
	}
	obs.ObserveLogin("success")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"account_id": res.Account.ID,
		"role":       res.Account.Role,
	})
	a.cookies.setAccessCookie(w, res.AccessToken, res.AccessExpiresAt)
	a.cookies.setRefreshCookie(w, res.Session)
	writeJSON(w, http.StatusOK, loginResponse{
		Account:     res.Account,
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.AccessExpiresAt,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := refreshTokenFrom(r)
	if token == "" {
		writeError(w, r, http.StatusBadRequest, "refresh token required")
		return
	}
	access, exp, acc, err := a.auth.Refresh(r.Context(), token)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.cookies.setAccessCookie(w, access, exp)
	writeJSON(w, http.StatusOK, loginResponse{
		Account:     acc,
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresAt:   exp,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	accessToken, _ := auth.TokenFromContext(r.Context())
	if err := a.auth.Logout(r.Context(), accessToken, refreshTokenFrom(r)); err != nil {
		handleAuthError(w, r, err)
		return
	}
	a.cookies.clearAuthCookies(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"account_id": p.ID})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := principalOr401(w, r)
	if !ok {
		return
	}
	acc, err := a.auth.Account(r.Context(), p.ID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) handlePending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireRole(w, r, auth.RoleAdmin, auth.RoleSuperAdmin); !ok {
		return
	}
	accounts, err := a.auth.Pending(r.Context())
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (a *API) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := requireRole(w, r, auth.RoleAdmin, auth.RoleSuperAdmin); !ok {
		return
	}
	accounts, err := a.auth.Accounts(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

type accountPatchRequest struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=64"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8,max=128"`
	Role     *string `json:"role" validate:"omitempty,oneof=member staff admin finance super_admin"`
}

// handleAccountResource serves /v1/auth/accounts/{id} and the
// /approve and /reject actions beneath it.
func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/auth/accounts/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}

	switch action {
	case "approve", "reject":
		a.handleApproval(w, r, id, action)
	case "":
		switch r.Method {
		case http.MethodGet:
			a.handleAccountGet(w, r, id)
		case http.MethodPatch:
			a.handleAccountPatch(w, r, id)
		case http.MethodDelete:
			a.handleAccountDelete(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	default:
		writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (a *API) handleApproval(w http.ResponseWriter, r *http.Request, id, action string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if _, ok := requireRole(w, r, auth.RoleAdmin, auth.RoleSuperAdmin); !ok {
		return
	}
	var (
		acc *auth.Account
		err error
	)
	if action == "approve" {
		acc, err = a.auth.Approve(r.Context(), id)
	} else {
		acc, err = a.auth.Reject(r.Context(), id)
	}
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth."+action, map[string]any{"account_id": id})
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) handleAccountGet(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireRole(w, r, auth.RoleAdmin, auth.RoleSuperAdmin); !ok {
		return
	}
	acc, err := a.auth.Account(r.Context(), id)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) handleAccountPatch(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := requireRole(w, r, auth.RoleAdmin, auth.RoleSuperAdmin); !ok {
		return
	}
	var req accountPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid input: "+validationMessage(err))
		return
	}
	acc, err := a.auth.UpdateAccount(r.Context(), id, auth.UpdateRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.account_update", map[string]any{"account_id": id})
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) handleAccountDelete(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := requireRole(w, r, auth.RoleAdmin, auth.RoleSuperAdmin)
	if !ok {
		return
	}
	if err := a.auth.DeleteAccount(r.Context(), p, id); err != nil {
		handleAuthError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "auth.account_delete", map[string]any{"account_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func refreshTokenFrom(r *http.Request) string {
	if c, err := r.Cookie(refreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	var req refreshRequest
	if err := decodeJSON(r, &req); err == nil {
		return strings.TrimSpace(req.RefreshToken)
	}
	return ""
}

func validationMessage(err error) string {
	// validator wraps field errors; surface just the offending fields.
	msg := err.Error()
	if i := strings.Index(msg, "Error:"); i >= 0 {
		return msg[i+len("Error:"):]
	}
	return msg
}
