package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zhardem.org/internal/auth"
)

func postJSON(t *testing.T, h http.Handler, path, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	rec := postJSON(t, h, "/v1/auth/register",
		`{"username":"dana","email":"dana@example.org","password":"long-enough-pass"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register = %d, body %s", rec.Code, rec.Body.String())
	}
	var acc auth.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &acc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if acc.ApprovalStatus != auth.ApprovalPending {
		t.Errorf("approval_status = %q, want PENDING", acc.ApprovalStatus)
	}
	if acc.Role != auth.RoleMember {
		t.Errorf("role = %q, want member", acc.Role)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response leaks password material")
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	cases := []string{
		`{"username":"dana","email":"not-an-email","password":"long-enough-pass"}`,
		`{"username":"dana","email":"dana@example.org","password":"short"}`,
		`{"username":"da","email":"dana@example.org","password":"long-enough-pass"}`,
		`{"username":"dana","email":"dana@example.org","password":"long-enough-pass","role":"czar"}`,
		`{"username":"dana","email":"dana@example.org","password":"long-enough-pass","extra":1}`,
		`not json`,
	}
	for _, body := range cases {
		if rec := postJSON(t, h, "/v1/auth/register", body); rec.Code != http.StatusBadRequest {
			t.Errorf("register %s = %d, want 400", body, rec.Code)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	env.seedAccount(t, "dup@example.org", "long-enough-pass", "", false)

	rec := postJSON(t, h, "/v1/auth/register",
		`{"username":"dup","email":"dup@example.org","password":"long-enough-pass"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register = %d, want 409", rec.Code)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	rec := postJSON(t, h, "/v1/auth/register",
		`{"username":"same_name","email":"first@example.org","password":"long-enough-pass"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first register = %d", rec.Code)
	}
	rec = postJSON(t, h, "/v1/auth/register",
		`{"username":"same_name","email":"second@example.org","password":"long-enough-pass"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate username register = %d, want 409", rec.Code)
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	env.seedAccount(t, "in@example.org", "long-enough-pass", "", true)

	rec := postJSON(t, h, "/v1/auth/login",
		`{"email":"in@example.org","password":"long-enough-pass"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d, body %s", rec.Code, rec.Body.String())
	}

	var res loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.AccessToken == "" || res.TokenType != "Bearer" {
		t.Errorf("response = %+v", res)
	}

	var gotAccess, gotRefresh bool
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case accessCookieName:
			gotAccess = true
			if !c.HttpOnly {
				t.Error("access cookie must be HttpOnly")
			}
		case refreshCookieName:
			gotRefresh = true
			if !c.HttpOnly {
				t.Error("refresh cookie must be HttpOnly")
			}
			if c.Path != refreshCookiePath {
				t.Errorf("refresh cookie path = %q, want %q", c.Path, refreshCookiePath)
			}
		}
	}
	if !gotAccess || !gotRefresh {
		t.Errorf("cookies set: access=%v refresh=%v", gotAccess, gotRefresh)
	}
}

func TestLoginPendingAccount(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	env.seedAccount(t, "wait@example.org", "long-enough-pass", "", false)

	rec := postJSON(t, h, "/v1/auth/login",
		`{"email":"wait@example.org","password":"long-enough-pass"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("pending login = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "approval") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestLoginBadPassword(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	env.seedAccount(t, "b@example.org", "long-enough-pass", "", true)

	rec := postJSON(t, h, "/v1/auth/login",
		`{"email":"b@example.org","password":"wrong-password-x"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password = %d, want 401", rec.Code)
	}
}

func TestLoginLockoutSurfacesMinutes(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	env.seedAccount(t, "lock@example.org", "long-enough-pass", "", true)

	for i := 0; i < 4; i++ {
		postJSON(t, h, "/v1/auth/login", `{"email":"lock@example.org","password":"wrong-password-x"}`)
	}
	rec := postJSON(t, h, "/v1/auth/login", `{"email":"lock@example.org","password":"wrong-password-x"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("fifth failure = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "account locked, try again in") {
		t.Errorf("lockout body = %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "auth:") {
		t.Errorf("lockout body leaks internal error prefix: %s", rec.Body.String())
	}

	// Correct password while locked changes nothing.
	rec = postJSON(t, h, "/v1/auth/login", `{"email":"lock@example.org","password":"long-enough-pass"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("correct password while locked = %d, want 403", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	acc := env.seedAccount(t, "r@example.org", "long-enough-pass", "", true)
	res := env.login(t, acc.Email, "long-enough-pass")

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: res.Session.Token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d, body %s", rec.Code, rec.Body.String())
	}
	var out loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AccessToken == "" {
		t.Error("no access token in refresh response")
	}
}

func TestRefreshWithBodyToken(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	acc := env.seedAccount(t, "rb@example.org", "long-enough-pass", "", true)
	res := env.login(t, acc.Email, "long-enough-pass")

	rec := postJSON(t, h, "/v1/auth/refresh", `{"refresh_token":"`+res.Session.Token+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d", rec.Code)
	}
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()

	rec := postJSON(t, h, "/v1/auth/refresh", `{"refresh_token":"unknown"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh unknown = %d, want 401", rec.Code)
	}
}

func TestLogoutEndpoint(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	acc := env.seedAccount(t, "out@example.org", "long-enough-pass", "", true)
	res := env.login(t, acc.Email, "long-enough-pass")

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: res.Session.Token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout = %d", rec.Code)
	}

	// The exact token presented at logout is now dead.
	req = httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+res.AccessToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d, want 401", rec.Code)
	}

	// And the refresh session is gone.
	rec = postJSON(t, h, "/v1/auth/refresh", `{"refresh_token":"`+res.Session.Token+`"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout = %d, want 401", rec.Code)
	}
}

func TestPendingRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	member := env.seedAccount(t, "m@example.org", "long-enough-pass", "", true)
	admin := env.seedAccount(t, "adm@example.org", "long-enough-pass", auth.RoleAdmin, true)
	env.seedAccount(t, "p@example.org", "long-enough-pass", "", false)

	memberTok := env.login(t, member.Email, "long-enough-pass").AccessToken
	adminTok := env.login(t, admin.Email, "long-enough-pass").AccessToken

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/pending", nil)
	req.Header.Set("Authorization", "Bearer "+memberTok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member pending = %d, want 403", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/auth/pending", nil)
	req.Header.Set("Authorization", "Bearer "+adminTok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin pending = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "p@example.org") {
		t.Errorf("pending body = %s", rec.Body.String())
	}
}

func TestApproveRejectEndpoints(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	admin := env.seedAccount(t, "a2@example.org", "long-enough-pass", auth.RoleAdmin, true)
	target := env.seedAccount(t, "t@example.org", "long-enough-pass", "", false)
	adminTok := env.login(t, admin.Email, "long-enough-pass").AccessToken

	rec := postJSON(t, h, "/v1/auth/accounts/"+target.ID+"/approve", "", withBearer(adminTok))
	if rec.Code != http.StatusOK {
		t.Fatalf("approve = %d, body %s", rec.Code, rec.Body.String())
	}
	// Idempotent re-approval.
	rec = postJSON(t, h, "/v1/auth/accounts/"+target.ID+"/approve", "", withBearer(adminTok))
	if rec.Code != http.StatusOK {
		t.Fatalf("re-approve = %d", rec.Code)
	}

	rec = postJSON(t, h, "/v1/auth/accounts/"+target.ID+"/reject", "", withBearer(adminTok))
	if rec.Code != http.StatusOK {
		t.Fatalf("reject = %d", rec.Code)
	}

	rec = postJSON(t, h, "/v1/auth/accounts/missing/approve", "", withBearer(adminTok))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("approve missing = %d, want 404", rec.Code)
	}
}

func TestAccountPatchEndpoint(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	admin := env.seedAccount(t, "a3@example.org", "long-enough-pass", auth.RoleAdmin, true)
	target := env.seedAccount(t, "t3@example.org", "long-enough-pass", "", true)
	adminTok := env.login(t, admin.Email, "long-enough-pass").AccessToken

	req := httptest.NewRequest(http.MethodPatch, "/v1/auth/accounts/"+target.ID,
		strings.NewReader(`{"role":"staff"}`))
	req.Header.Set("Authorization", "Bearer "+adminTok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("patch = %d, body %s", rec.Code, rec.Body.String())
	}
	var acc auth.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &acc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if acc.Role != auth.RoleStaff {
		t.Errorf("role = %q, want staff", acc.Role)
	}

	req = httptest.NewRequest(http.MethodPatch, "/v1/auth/accounts/"+target.ID,
		strings.NewReader(`{"role":"czar"}`))
	req.Header.Set("Authorization", "Bearer "+adminTok)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("patch bad role = %d, want 400", rec.Code)
	}
}

func TestAccountDeleteRules(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	admin := env.seedAccount(t, "a4@example.org", "long-enough-pass", auth.RoleAdmin, true)
	staff := env.seedAccount(t, "s4@example.org", "long-enough-pass", auth.RoleStaff, true)
	member := env.seedAccount(t, "m4@example.org", "long-enough-pass", "", true)
	boss := env.seedAccount(t, "b4@example.org", "long-enough-pass", auth.RoleSuperAdmin, true)
	adminTok := env.login(t, admin.Email, "long-enough-pass").AccessToken

	del := func(id string) int {
		req := httptest.NewRequest(http.MethodDelete, "/v1/auth/accounts/"+id, nil)
		req.Header.Set("Authorization", "Bearer "+adminTok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := del(admin.ID); code != http.StatusForbidden {
		t.Errorf("self delete = %d, want 403", code)
	}
	if code := del(boss.ID); code != http.StatusForbidden {
		t.Errorf("super_admin delete = %d, want 403", code)
	}
	if code := del(staff.ID); code != http.StatusForbidden {
		t.Errorf("admin deleting staff = %d, want 403", code)
	}
	if code := del(member.ID); code != http.StatusNoContent {
		t.Errorf("admin deleting member = %d, want 204", code)
	}
}

func TestMeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	h := env.api.Handler()
	acc := env.seedAccount(t, "me@example.org", "long-enough-pass", "", true)
	tok := env.login(t, acc.Email, "long-enough-pass").AccessToken

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("me = %d", rec.Code)
	}
	var got auth.Account
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != acc.ID || got.Email != acc.Email {
		t.Errorf("me = %+v", got)
	}
}
