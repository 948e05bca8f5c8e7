package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	Allow  bool
	Reason string
}

type policyEntry struct {
	wildcard bool
	verbs    map[string]struct{}
}

// Policy is the single role×verb decision table used everywhere in the
// system. There used to be two mechanisms for this (a verb matrix and an
// allowlist helper with a super_admin bypass); they are unified here with
// super_admin as an explicit wildcard entry. A role absent from the table is
// always denied, never defaulted.
type Policy struct {
	rules map[string]policyEntry
}

// DefaultPolicy returns the fixed role×verb table:
// member GET; finance GET/POST; staff GET/POST/PUT/PATCH; admin all verbs;
// super_admin wildcard.
func DefaultPolicy() *Policy {
	return &Policy{rules: map[string]policyEntry{
		RoleMember:  verbs(http.MethodGet),
		RoleFinance: verbs(http.MethodGet, http.MethodPost),
		RoleStaff:   verbs(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch),
		RoleAdmin:   verbs(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete),
		RoleSuperAdmin: {wildcard: true},
	}}
}

func verbs(list ...string) policyEntry {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return policyEntry{verbs: set}
}

// Authorize evaluates the table for a (role, verb) pair.
func (p *Policy) Authorize(role, verb string) Decision {
	role = strings.TrimSpace(strings.ToLower(role))
	verb = strings.ToUpper(strings.TrimSpace(verb))
	entry, ok := p.rules[role]
	if !ok {
		return Decision{Reason: fmt.Sprintf("role %q has no permissions", role)}
	}
	if entry.wildcard {
		return Decision{Allow: true}
	}
	if _, ok := entry.verbs[verb]; !ok {
		return Decision{Reason: fmt.Sprintf("role %q is not allowed to %s", role, verb)}
	}
	return Decision{Allow: true}
}
