// Package migrate applies versioned SQL files and idempotent seeds from a
// directory tree, recording what ran in bookkeeping tables.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"zhardem.org/internal/obs"
)

const (
	migrationsTable = "schema_migrations"
	seedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Runner applies migrations and seeds against one database.
type Runner struct {
	db            *sql.DB
	migrationsDir string
	seedsDir      string
}

func NewRunner(db *sql.DB, migrationsDir, seedsDir string) *Runner {
	return &Runner{db: db, migrationsDir: migrationsDir, seedsDir: seedsDir}
}

// Up applies every pending *.up.sql in lexical order, each inside its own
// transaction.
func (r *Runner) Up(ctx context.Context) error {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return err
	}
	applied, err := r.appliedSet(ctx, migrationsTable)
	if err != nil {
		return err
	}
	names, err := listSQL(r.migrationsDir, upSuffix)
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := r.applyFile(ctx, filepath.Join(r.migrationsDir, name)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if err := r.mark(ctx, migrationsTable, name); err != nil {
			return err
		}
		obs.Logger().Info().Str("migration", name).Msg("applied")
	}
	return nil
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (r *Runner) Down(ctx context.Context) error {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return err
	}
	applied, err := r.Status(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return errors.New("nothing to roll back")
	}
	last := applied[len(applied)-1]
	down := strings.TrimSuffix(last, upSuffix) + downSuffix
	if err := r.applyFile(ctx, filepath.Join(r.migrationsDir, down)); err != nil {
		return fmt.Errorf("rollback %s: %w", last, err)
	}
	if _, err := r.db.ExecContext(ctx,
		`delete from `+migrationsTable+` where name = $1`, last); err != nil {
		return err
	}
	obs.Logger().Info().Str("migration", last).Msg("rolled back")
	return nil
}

// Status returns applied migration names in application order.
func (r *Runner) Status(ctx context.Context) ([]string, error) {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`select name from `+migrationsTable+` order by applied_at asc, name asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Seed applies every *.sql seed file that has not run yet.
func (r *Runner) Seed(ctx context.Context) error {
	if err := r.ensureBookkeeping(ctx); err != nil {
		return err
	}
	applied, err := r.appliedSet(ctx, seedsTable)
	if err != nil {
		return err
	}
	names, err := listSQL(r.seedsDir, ".sql")
	if err != nil {
		return err
	}
	for _, name := range names {
		if applied[name] {
			continue
		}
		if err := r.applyFile(ctx, filepath.Join(r.seedsDir, name)); err != nil {
			return fmt.Errorf("seed %s: %w", name, err)
		}
		if err := r.mark(ctx, seedsTable, name); err != nil {
			return err
		}
		obs.Logger().Info().Str("seed", name).Msg("applied")
	}
	return nil
}

func (r *Runner) ensureBookkeeping(ctx context.Context) error {
	for _, table := range []string{migrationsTable, seedsTable} {
		ddl := `create table if not exists ` + table + ` (
			name text primary key,
			applied_at timestamptz not null default now()
		)`
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) appliedSet(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `select name from `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		set[name] = true
	}
	return set, rows.Err()
}

// applyFile runs one SQL file as a single transactional batch. Files hold
// plain DDL/DML without procedural bodies, so pgx can execute the batch
// as one script.
func (r *Runner) applyFile(ctx context.Context, path string) error {
	body, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Runner) mark(ctx context.Context, table, name string) error {
	_, err := r.db.ExecContext(ctx,
		`insert into `+table+`(name) values ($1) on conflict (name) do nothing`, name)
	return err
}

func listSQL(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		if suffix == ".sql" && strings.HasSuffix(e.Name(), downSuffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
