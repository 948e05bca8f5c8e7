package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"zhardem.org/internal/ids"
)

// Service is a generic CRUD layer over the declared entities. Column names
// are taken from the startup-validated registry, never from request input.
type Service struct {
	db       *sql.DB
	entities map[string]Entity
}

func NewService(db *sql.DB) (*Service, error) {
	entities := make(map[string]Entity)
	for _, e := range Registry() {
		if err := validateEntity(e); err != nil {
			return nil, err
		}
		entities[e.Name] = e
	}
	return &Service{db: db, entities: entities}, nil
}

// Entity resolves a declared entity by name.
func (s *Service) Entity(name string) (Entity, bool) {
	e, ok := s.entities[strings.TrimSpace(strings.ToLower(name))]
	return e, ok
}

func (s *Service) selectColumns(e Entity) []string {
	cols := append([]string{e.IDColumn}, e.Columns...)
	if e.OwnerColumn != "" {
		cols = append(cols, e.OwnerColumn)
	}
	return append(cols, "created_at")
}

// List returns every record of an entity.
func (s *Service) List(ctx context.Context, entity string) ([]map[string]any, error) {
	e, ok := s.Entity(entity)
	if !ok {
		return nil, ErrUnknownEntity
	}
	cols := s.selectColumns(e)
	query := fmt.Sprintf(`select %s from %s order by created_at asc`, strings.Join(cols, ", "), e.Table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		record, err := scanRecord(rows, cols)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, entity, id string) (map[string]any, error) {
	e, ok := s.Entity(entity)
	if !ok {
		return nil, ErrUnknownEntity
	}
	cols := s.selectColumns(e)
	query := fmt.Sprintf(`select %s from %s where %s = $1`, strings.Join(cols, ", "), e.Table, e.IDColumn)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return scanRecord(rows, cols)
}

// Create inserts a record from a whitelisted field map. For ownership-scoped
// entities the owner column is set to the creator, never taken from input.
func (s *Service) Create(ctx context.Context, entity string, fields map[string]any, owner string) (string, error) {
	e, ok := s.Entity(entity)
	if !ok {
		return "", ErrUnknownEntity
	}
	cols, args, err := filterFields(e, fields)
	if err != nil {
		return "", err
	}
	id := ids.New()
	cols = append([]string{e.IDColumn}, cols...)
	args = append([]any{id}, args...)
	if e.OwnerColumn != "" {
		cols = append(cols, e.OwnerColumn)
		args = append(args, owner)
	}
	placeholders := make([]string, len(args))
	for i := range args {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`insert into %s(%s) values(%s)`,
		e.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", classify(err)
	}
	return id, nil
}

// Update applies a whitelisted field map to one record.
func (s *Service) Update(ctx context.Context, entity, id string, fields map[string]any) error {
	e, ok := s.Entity(entity)
	if !ok {
		return ErrUnknownEntity
	}
	cols, args, err := filterFields(e, fields)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return fmt.Errorf("%w: no updatable fields", ErrInvalidField)
	}
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", col, i+2)
	}
	query := fmt.Sprintf(`update %s set %s where %s = $1`, e.Table, strings.Join(sets, ", "), e.IDColumn)
	res, err := s.db.ExecContext(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return classify(err)
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

// Delete removes one record by id.
func (s *Service) Delete(ctx context.Context, entity, id string) error {
	e, ok := s.Entity(entity)
	if !ok {
		return ErrUnknownEntity
	}
	query := fmt.Sprintf(`delete from %s where %s = $1`, e.Table, e.IDColumn)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return classify(err)
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

func filterFields(e Entity, fields map[string]any) ([]string, []any, error) {
	allowed := make(map[string]struct{}, len(e.Columns))
	for _, c := range e.Columns {
		allowed[c] = struct{}{}
	}
	var (
		cols []string
		args []any
	)
	// Deterministic column order keeps generated SQL stable for tests.
	for _, c := range e.Columns {
		v, ok := fields[c]
		if !ok {
			continue
		}
		cols = append(cols, c)
		args = append(args, v)
	}
	for k := range fields {
		if _, ok := allowed[k]; !ok {
			return nil, nil, fmt.Errorf("%w: %q", ErrInvalidField, k)
		}
	}
	return cols, args, nil
}

func scanRecord(rows *sql.Rows, cols []string) (map[string]any, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	record := make(map[string]any, len(cols))
	for i, col := range cols {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		record[col] = v
	}
	return record, nil
}

func classify(err error) error {
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
	return err
}
