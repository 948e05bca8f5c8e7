// Package records is the record-handling collaborator behind the protected
// routes: a declarative registry of the six NGO record entities and a
// generic store over their tables. All authentication, role and ownership
// decisions happen before any of this code runs.
package records

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrNotFound         = errors.New("records: not found")
	ErrConflict         = errors.New("records: already exists")
	ErrInvalidField     = errors.New("records: invalid field")
	ErrUnknownEntity    = errors.New("records: unknown entity")
	ErrDependentRecords = errors.New("records: dependent records exist")
)

// Entity declares one record type: its table, id column, writable columns
// and, for ownership-scoped entities, the owner column consulted by the
// ownership check.
type Entity struct {
	Name        string
	Table       string
	IDColumn    string
	OwnerColumn string
	Columns     []string
}

// OwnershipScoped reports whether single-record routes for this entity run
// the ownership check.
func (e Entity) OwnershipScoped() bool { return e.OwnerColumn != "" }

// Registry returns the six record entities this backend manages. Board
// members and finance reports have no owner column: only privileged roles
// reach their single-record routes.
func Registry() []Entity {
	return []Entity{
		{
			Name: "students", Table: "students", IDColumn: "id", OwnerColumn: "owner_email",
			Columns: []string{"full_name", "email", "grade_level", "enrollment_date", "status"},
		},
		{
			Name: "volunteers", Table: "volunteers", IDColumn: "id", OwnerColumn: "owner_email",
			Columns: []string{"full_name", "email", "phone", "skills", "joined_at"},
		},
		{
			Name: "donors", Table: "donors", IDColumn: "id", OwnerColumn: "owner_email",
			Columns: []string{"full_name", "email", "organization", "total_donated"},
		},
		{
			Name: "board_members", Table: "board_members", IDColumn: "id",
			Columns: []string{"full_name", "email", "position", "term_start", "term_end", "account_id"},
		},
		{
			Name: "projects", Table: "projects", IDColumn: "id", OwnerColumn: "owner_email",
			Columns: []string{"name", "description", "status", "budget", "started_at"},
		},
		{
			Name: "finance_reports", Table: "finance_reports", IDColumn: "id",
			Columns: []string{"title", "period", "total_income", "total_expense", "published", "project_id"},
		},
	}
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func validateEntity(e Entity) error {
	idents := append([]string{e.Table, e.IDColumn}, e.Columns...)
	if e.OwnerColumn != "" {
		idents = append(idents, e.OwnerColumn)
	}
	for _, ident := range idents {
		if !identPattern.MatchString(ident) {
			return fmt.Errorf("entity %q: invalid identifier %q", e.Name, ident)
		}
	}
	if strings.TrimSpace(e.Name) == "" || len(e.Columns) == 0 {
		return fmt.Errorf("entity %q: incomplete declaration", e.Name)
	}
	return nil
}
