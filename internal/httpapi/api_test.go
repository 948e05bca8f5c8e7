package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"golang.org/x/crypto/bcrypt"

	"zhardem.org/internal/auth"
	"zhardem.org/internal/records"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// In-memory implementations of the storage contracts, used to exercise the
// HTTP surface without a database. Record routes that do reach SQL run
// against sqlmock.

type memAccounts struct {
	mu   sync.Mutex
	byID map[string]*auth.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{byID: make(map[string]*auth.Account)}
}

func (m *memAccounts) Create(_ context.Context, acc *auth.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == acc.Email || existing.Username == acc.Username {
			return auth.ErrConflict
		}
	}
	cp := *acc
	m.byID[acc.ID] = &cp
	return nil
}

func (m *memAccounts) Find(_ context.Context, id string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *acc
	return &cp, nil
}

func (m *memAccounts) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.byID {
		if acc.Email == email {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m *memAccounts) List(_ context.Context, status string) ([]*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []*auth.Account
	for _, acc := range m.byID {
		if status == "" || acc.ApprovalStatus == status {
			cp := *acc
			res = append(res, &cp)
		}
	}
	return res, nil
}

func (m *memAccounts) Update(_ context.Context, id string, upd auth.AccountUpdate) (*auth.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	if upd.Username != nil {
		acc.Username = *upd.Username
	}
	if upd.Email != nil {
		acc.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		acc.PasswordHash = *upd.PasswordHash
	}
	if upd.Role != nil {
		acc.Role = *upd.Role
	}
	if upd.ApprovalStatus != nil {
		acc.ApprovalStatus = *upd.ApprovalStatus
	}
	cp := *acc
	return &cp, nil
}

func (m *memAccounts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memAccounts) RecordFailure(_ context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok {
		return 0, nil, auth.ErrNotFound
	}
	acc.FailedAttempts++
	if acc.FailedAttempts >= threshold {
		until := time.Now().Add(lockFor)
		acc.LockedUntil = &until
	}
	if acc.LockedUntil == nil {
		return acc.FailedAttempts, nil, nil
	}
	t := *acc.LockedUntil
	return acc.FailedAttempts, &t, nil
}

func (m *memAccounts) RecordSuccess(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	acc.FailedAttempts = 0
	acc.LockedUntil = nil
	return nil
}

type memSessions struct {
	mu      sync.Mutex
	byToken map[string]*auth.RefreshSession
}

func newMemSessions() *memSessions {
	return &memSessions{byToken: make(map[string]*auth.RefreshSession)}
}

func (m *memSessions) Create(_ context.Context, s *auth.RefreshSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byToken[s.Token] = &cp
	return nil
}

func (m *memSessions) Find(_ context.Context, token string) (*auth.RefreshSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byToken[token]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byToken[token]; !ok {
		return auth.ErrNotFound
	}
	delete(m.byToken, token)
	return nil
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]struct{}
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: make(map[string]struct{})}
}

func (m *memRevocations) Revoke(_ context.Context, token string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[token] = struct{}{}
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[token]
	return ok, nil
}

type memOwners struct {
	mu     sync.Mutex
	owners map[string]string // "table/recordID" -> owner value
}

func newMemOwners() *memOwners {
	return &memOwners{owners: make(map[string]string)}
}

func (m *memOwners) set(table, recordID, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners[table+"/"+recordID] = owner
}

func (m *memOwners) RecordOwner(_ context.Context, rule auth.OwnershipRule, recordID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	owner, ok := m.owners[rule.Table+"/"+recordID]
	if !ok {
		return "", auth.ErrNotFound
	}
	return owner, nil
}

type testEnv struct {
	api      *API
	svc      *auth.Service
	accounts *memAccounts
	owners   *memOwners
	sqlmock  sqlmock.Sqlmock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	issuer, err := auth.NewIssuer(testSecret, "zhardem", time.Hour, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	accounts := newMemAccounts()
	svc, err := auth.NewService(
		accounts, newMemSessions(), newMemRevocations(), issuer,
		auth.NewLockoutGuard(accounts, 5, 15*time.Minute),
		auth.WithBcryptCost(bcrypt.MinCost),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	recordSvc, err := records.NewService(db)
	if err != nil {
		t.Fatalf("records.NewService: %v", err)
	}

	rules := make(map[string]auth.OwnershipRule)
	for _, e := range records.Registry() {
		if e.OwnershipScoped() {
			rules[e.Name] = auth.OwnershipRule{Table: e.Table, IDColumn: e.IDColumn, OwnerColumn: e.OwnerColumn}
		}
	}
	registry, err := auth.NewOwnershipRegistry(rules)
	if err != nil {
		t.Fatalf("NewOwnershipRegistry: %v", err)
	}
	owners := newMemOwners()

	api := New(Options{
		Auth:      svc,
		Records:   recordSvc,
		Ownership: auth.NewOwnershipChecker(registry, owners),
		Version:   "test",
		Cookies:   DefaultCookieConfig(false),
	})
	return &testEnv{api: api, svc: svc, accounts: accounts, owners: owners, sqlmock: mock}
}

// seedAccount registers and optionally approves an account, returning it.
func (e *testEnv) seedAccount(t *testing.T, email, password, role string, approved bool) *auth.Account {
	t.Helper()
	acc, err := e.svc.Register(context.Background(), "u-"+email, email, password, role)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if approved {
		if acc, err = e.svc.Approve(context.Background(), acc.ID); err != nil {
			t.Fatalf("Approve: %v", err)
		}
	}
	return acc
}

// login returns an access token for an already approved account.
func (e *testEnv) login(t *testing.T, email, password string) *auth.LoginResult {
	t.Helper()
	res, err := e.svc.Login(context.Background(), email, password, "test")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return res
}
