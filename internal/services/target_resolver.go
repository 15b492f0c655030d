package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/nursdev/lms-notifications/internal/repository"
)

// TargetKind discriminates the parsed forms of a target spec.
type TargetKind int

const (
	TargetUser TargetKind = iota
	TargetRole
	TargetList
	TargetAll
)

// Target is a parsed target spec.
type Target struct {
	Kind    TargetKind
	UserID  string
	Role    string
	UserIDs []string
}

// Global reports whether the target is delivered as a single shared row with
// a per-user dismissal overlay instead of per-recipient fan-out.
func (t Target) Global() bool {
	return t.Kind == TargetAll || (t.Kind == TargetRole && t.Role == "*")
}

// ParseTarget parses "user:<id>", "role:<role>", "list:<id,...>" or "all".
// Duplicate list ids are collapsed so a repeated id yields one delivery.
func ParseTarget(spec string) (Target, error) {
	spec = strings.TrimSpace(spec)
	if spec == "all" {
		return Target{Kind: TargetAll}, nil
	}

	prefix, rest, found := strings.Cut(spec, ":")
	if !found || rest == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, spec)
	}
	switch prefix {
	case "user":
		return Target{Kind: TargetUser, UserID: rest}, nil
	case "role":
		return Target{Kind: TargetRole, Role: rest}, nil
	case "list":
		var ids []string
		seen := make(map[string]bool)
		for _, id := range strings.Split(rest, ",") {
			id = strings.TrimSpace(id)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return Target{}, fmt.Errorf("%w: empty list", ErrInvalidTarget)
		}
		return Target{Kind: TargetList, UserIDs: ids}, nil
	}
	return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, spec)
}

// TargetResolver expands a parsed target into the concrete recipient set at
// resolution time. Fan-out is snapshot-based: users joining a role later do
// not receive earlier notifications.
type TargetResolver struct {
	users repository.UserStore
}

func NewTargetResolver(users repository.UserStore) *TargetResolver {
	return &TargetResolver{users: users}
}

// Resolve returns recipient user ids plus the number of requested ids that
// were dropped because they do not exist or are inactive. Dropped ids are
// reported for logging, not as an error, unless nothing valid remains.
func (r *TargetResolver) Resolve(ctx context.Context, target Target) ([]string, int, error) {
	switch target.Kind {
	case TargetUser:
		return []string{target.UserID}, 0, nil

	case TargetRole:
		users, err := r.users.GetActiveUsersByRole(ctx, target.Role)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return userIDs(users), 0, nil

	case TargetList:
		users, err := r.users.GetUsersByIDs(ctx, target.UserIDs)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		var ids []string
		for _, u := range users {
			if u.Active {
				ids = append(ids, u.ID)
			}
		}
		dropped := len(target.UserIDs) - len(ids)
		if len(ids) == 0 {
			return nil, dropped, fmt.Errorf("%w: no valid recipients in list", ErrInvalidTarget)
		}
		return ids, dropped, nil

	case TargetAll:
		users, err := r.users.GetActiveUsers(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return userIDs(users), 0, nil
	}
	return nil, 0, ErrInvalidTarget
}

func userIDs(users []models.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
