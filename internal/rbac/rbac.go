// Package rbac answers the two authorization questions of the district org
// chart: who may provision accounts for whom, and who may perform which task
// action. Both are pure lookups over the static config tables; anything not
// listed is denied.
package rbac

import (
	"fmt"

	"ijro/internal/config"
	"ijro/internal/domain"
)

// ForbiddenError indicates a failed permission or hierarchy check.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return e.Reason
}

// Forbidden builds a ForbiddenError with a formatted reason.
func Forbidden(format string, args ...any) ForbiddenError {
	return ForbiddenError{Reason: fmt.Sprintf(format, args...)}
}

// Authority evaluates the static role tables. It holds no mutable state.
type Authority struct {
	cfg *config.Config
}

func New(cfg *config.Config) Authority {
	return Authority{cfg: cfg}
}

// CanCreateUser reports whether creator may provision an account with the
// target role. Unknown roles fail closed.
func (a Authority) CanCreateUser(creator, target domain.Role) bool {
	if a.cfg == nil {
		return false
	}
	spec, ok := a.cfg.Roles[creator]
	if !ok {
		return false
	}
	for _, allowed := range spec.CanCreate {
		if allowed == target {
			return true
		}
	}
	return false
}

// CanPerformTaskAction reports whether role may perform the task action.
// Actions outside the fixed vocabulary are always denied.
func (a Authority) CanPerformTaskAction(role domain.Role, action domain.TaskAction) bool {
	if a.cfg == nil || !domain.ValidTaskAction(action) {
		return false
	}
	spec, ok := a.cfg.Roles[role]
	if !ok {
		return false
	}
	for _, allowed := range spec.TaskActions {
		if allowed == action {
			return true
		}
	}
	return false
}

// HasPermission reports whether the role holds any of the required named
// permissions, or the admin_all wildcard.
func (a Authority) HasPermission(role domain.Role, required ...string) bool {
	if a.cfg == nil || len(required) == 0 {
		return false
	}
	spec, ok := a.cfg.Roles[role]
	if !ok {
		return false
	}
	for _, held := range spec.Permissions {
		if held == config.PermissionAdminAll {
			return true
		}
		for _, want := range required {
			if held == want {
				return true
			}
		}
	}
	return false
}

// Permissions returns the role's named permission set.
func (a Authority) Permissions(role domain.Role) []string {
	if a.cfg == nil {
		return nil
	}
	return a.cfg.Roles[role].Permissions
}

// RequireTaskAction returns a ForbiddenError unless role may perform action.
func (a Authority) RequireTaskAction(role domain.Role, action domain.TaskAction) error {
	if !a.CanPerformTaskAction(role, action) {
		return Forbidden("role %s may not %s tasks", role, action)
	}
	return nil
}
