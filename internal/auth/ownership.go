package auth

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// OwnershipRule declares where a protected entity keeps its owner column.
type OwnershipRule struct {
	Table       string
	IDColumn    string
	OwnerColumn string
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// OwnershipRegistry is the declarative entity → rule mapping, validated once
// at startup instead of being duplicated near route declarations.
type OwnershipRegistry struct {
	rules map[string]OwnershipRule
}

// NewOwnershipRegistry validates every identifier in the mapping. Rules feed
// directly into SQL, so anything that is not a plain lowercase identifier is
// refused here.
func NewOwnershipRegistry(rules map[string]OwnershipRule) (*OwnershipRegistry, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("ownership registry is empty")
	}
	out := make(map[string]OwnershipRule, len(rules))
	for entity, rule := range rules {
		entity = strings.TrimSpace(strings.ToLower(entity))
		if entity == "" {
			return nil, fmt.Errorf("ownership rule with empty entity name")
		}
		for _, ident := range []string{rule.Table, rule.IDColumn, rule.OwnerColumn} {
			if !identPattern.MatchString(ident) {
				return nil, fmt.Errorf("ownership rule for %q: invalid identifier %q", entity, ident)
			}
		}
		out[entity] = rule
	}
	return &OwnershipRegistry{rules: out}, nil
}

// Rule returns the declared rule for an entity.
func (r *OwnershipRegistry) Rule(entity string) (OwnershipRule, bool) {
	rule, ok := r.rules[strings.TrimSpace(strings.ToLower(entity))]
	return rule, ok
}

// OwnershipChecker grants access to a single record when the caller is
// privileged or owns the record.
type OwnershipChecker struct {
	registry *OwnershipRegistry
	store    OwnerStore
}

func NewOwnershipChecker(registry *OwnershipRegistry, store OwnerStore) *OwnershipChecker {
	return &OwnershipChecker{registry: registry, store: store}
}

// Check resolves the record's owner column and compares it with the caller's
// email or account id. A missing record is a not-found outcome, distinct
// from denial.
func (c *OwnershipChecker) Check(ctx context.Context, entity, recordID string, p Principal) error {
	if p.Privileged() {
		return nil
	}
	rule, ok := c.registry.Rule(entity)
	if !ok {
		return fmt.Errorf("%w: unknown entity %q", ErrInvalidInput, entity)
	}
	owner, err := c.store.RecordOwner(ctx, rule, recordID)
	if err != nil {
		return err
	}
	owner = strings.TrimSpace(owner)
	if strings.EqualFold(owner, p.Email) || owner == p.ID {
		return nil
	}
	return ErrForbidden
}
