// Package auth maps API keys to principals. Sessions are bound to the
// principal that created them.
package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

const (
	// RoleChat may open sessions and run turns.
	RoleChat = "chat"
	// RoleQuery may run hand-written SQL through the guarded executor.
	RoleQuery = "query"
)

var defaultRoles = []string{RoleChat, RoleQuery}

type Identity struct {
	Principal string
	Roles     []string
}

func (i Identity) HasRole(role string) bool {
	for _, candidate := range i.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type StaticAPIKeyValidator struct {
	keys map[string]Identity
}

// NewStaticAPIKeyValidator parses "key:principal[:role|role],..." entries.
// An entry without roles gets every role.
func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{keys: map[string]Identity{}}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 2 && len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:principal[:role|role]", entry)
		}
		key := strings.TrimSpace(parts[0])
		principal := strings.TrimSpace(parts[1])
		if key == "" || principal == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/principal", entry)
		}
		if _, dup := validator.keys[key]; dup {
			return nil, fmt.Errorf("invalid static key entry %q: duplicate key", entry)
		}

		roles := append([]string(nil), defaultRoles...)
		if len(parts) == 3 {
			roles = roles[:0]
			for _, role := range strings.Split(parts[2], "|") {
				role = strings.TrimSpace(role)
				if role == "" {
					continue
				}
				if role != RoleChat && role != RoleQuery {
					return nil, fmt.Errorf("invalid static key entry %q: unknown role %q", entry, role)
				}
				roles = append(roles, role)
			}
			if len(roles) == 0 {
				return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
			}
		}
		sort.Strings(roles)
		validator.keys[key] = Identity{Principal: principal, Roles: roles}
	}

	return validator, nil
}

func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	identity, ok := v.keys[apiKey]
	return identity, ok
}

func (v *StaticAPIKeyValidator) Len() int { return len(v.keys) }
