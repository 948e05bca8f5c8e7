package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	_ AccountStore        = (*PGAccountStore)(nil)
	_ RefreshSessionStore = (*PGSessionStore)(nil)
	_ OwnerStore          = (*PGOwnerStore)(nil)
)

const accountColumns = `id, username, email, password_hash, role, approval_status, failed_attempts, locked_until, created_at, updated_at`

// PGAccountStore implements AccountStore using PostgreSQL.
type PGAccountStore struct {
	db *sql.DB
}

func NewPGAccountStore(db *sql.DB) *PGAccountStore {
	return &PGAccountStore{db: db}
}

func (s *PGAccountStore) Create(ctx context.Context, acc *Account) error {
	_, err := s.db.ExecContext(ctx,
		`insert into accounts(id, username, email, password_hash, role, approval_status)
		 values($1,$2,$3,$4,$5,$6)`,
		acc.ID, acc.Username, acc.Email, acc.PasswordHash, acc.Role, acc.ApprovalStatus,
	)
	return classifyPGError(err)
}

func (s *PGAccountStore) Find(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where id=$1`, id)
	return scanAccount(row)
}

func (s *PGAccountStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+accountColumns+` from accounts where email=$1`, email)
	return scanAccount(row)
}

func (s *PGAccountStore) List(ctx context.Context, status string) ([]*Account, error) {
	query := `select ` + accountColumns + ` from accounts`
	args := []any{}
	if status != "" {
		query += ` where approval_status=$1`
		args = append(args, status)
	}
	query += ` order by created_at asc`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, acc)
	}
	return res, rows.Err()
}

func (s *PGAccountStore) Update(ctx context.Context, id string, upd AccountUpdate) (*Account, error) {
	sets := []string{}
	args := []any{id}
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		args = append(args, *value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("username", upd.Username)
	add("email", upd.Email)
	add("password_hash", upd.PasswordHash)
	add("role", upd.Role)
	add("approval_status", upd.ApprovalStatus)
	if len(sets) == 0 {
		return s.Find(ctx, id)
	}
	sets = append(sets, "updated_at = now()")

	query := `update accounts set ` + strings.Join(sets, ", ") +
		` where id=$1 returning ` + accountColumns
	acc, err := scanAccount(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, classifyPGError(err)
	}
	return acc, nil
}

func (s *PGAccountStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where id=$1`, id)
	if err != nil {
		return classifyPGError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordFailure is the one operation requiring true read-modify-write
// atomicity: the increment and the lockout decision happen in a single
// conditional update that returns the new state.
func (s *PGAccountStore) RecordFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	row := s.db.QueryRowContext(ctx, `
		update accounts
		   set failed_attempts = failed_attempts + 1,
		       locked_until = case
		           when failed_attempts + 1 >= $2 then now() + make_interval(secs => $3)
		           else locked_until
		       end,
		       updated_at = now()
		 where id = $1
		 returning failed_attempts, locked_until`,
		id, threshold, lockFor.Seconds(),
	)
	var (
		attempts    int
		lockedUntil sql.NullTime
	)
	if err := row.Scan(&attempts, &lockedUntil); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, err
	}
	if !lockedUntil.Valid {
		return attempts, nil, nil
	}
	t := lockedUntil.Time
	return attempts, &t, nil
}

func (s *PGAccountStore) RecordSuccess(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`update accounts set failed_attempts = 0, locked_until = null, updated_at = now() where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PGSessionStore implements RefreshSessionStore using PostgreSQL.
type PGSessionStore struct {
	db *sql.DB
}

func NewPGSessionStore(db *sql.DB) *PGSessionStore {
	return &PGSessionStore{db: db}
}

func (s *PGSessionStore) Create(ctx context.Context, session *RefreshSession) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_sessions(token, account_id, issued_at, expires_at, device)
		 values($1,$2,$3,$4,$5)`,
		session.Token, session.AccountID, session.IssuedAt, session.ExpiresAt, session.Device,
	)
	return classifyPGError(err)
}

func (s *PGSessionStore) Find(ctx context.Context, token string) (*RefreshSession, error) {
	row := s.db.QueryRowContext(ctx,
		`select token, account_id, issued_at, expires_at, device from refresh_sessions where token=$1`, token)
	var session RefreshSession
	if err := row.Scan(&session.Token, &session.AccountID, &session.IssuedAt, &session.ExpiresAt, &session.Device); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *PGSessionStore) Delete(ctx context.Context, token string) error {
	res, err := s.db.ExecContext(ctx, `delete from refresh_sessions where token=$1`, token)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PGOwnerStore implements the owner column lookup for ownership checks.
type PGOwnerStore struct {
	db *sql.DB
}

func NewPGOwnerStore(db *sql.DB) *PGOwnerStore {
	return &PGOwnerStore{db: db}
}

// RecordOwner fetches the configured owner column by record id. Identifiers
// come from the startup-validated ownership registry.
func (s *PGOwnerStore) RecordOwner(ctx context.Context, rule OwnershipRule, recordID string) (string, error) {
	query := fmt.Sprintf(`select %s from %s where %s = $1`, rule.OwnerColumn, rule.Table, rule.IDColumn)
	var owner sql.NullString
	if err := s.db.QueryRowContext(ctx, query, recordID).Scan(&owner); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", err
	}
	return owner.String, nil
}

// classifyPGError maps the storage-level constraint violations this
// subsystem cares about onto its sentinel errors.
func classifyPGError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrConflict
		case "23503":
			return ErrDependentRecords
		}
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		acc         Account
		lockedUntil sql.NullTime
	)
	err := row.Scan(
		&acc.ID, &acc.Username, &acc.Email, &acc.PasswordHash, &acc.Role,
		&acc.ApprovalStatus, &acc.FailedAttempts, &lockedUntil,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lockedUntil.Valid {
		t := lockedUntil.Time
		acc.LockedUntil = &t
	}
	return &acc, nil
}
