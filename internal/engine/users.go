package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ijro/internal/domain"
	"ijro/internal/rbac"
	"ijro/internal/repo"
)

// UserCreateOptions are parameters for provisioning an account.
type UserCreateOptions struct {
	ID       string
	PNFL     string
	FullName string
	Role     domain.Role
	OrgID    string
}

func validPNFL(pnfl string) bool {
	if len(pnfl) != 14 {
		return false
	}
	for _, c := range pnfl {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CreateUser provisions an account in pending status. The hierarchy table
// decides who may create whom; organization roles must be attached to an
// active organization.
func (e Engine) CreateUser(ctx context.Context, actor domain.Actor, opts UserCreateOptions) (domain.User, error) {
	if !domain.ValidRole(opts.Role) {
		return domain.User{}, Validation("unknown role %s", opts.Role)
	}
	if !e.Auth.CanCreateUser(actor.Role, opts.Role) {
		return domain.User{}, rbac.Forbidden("role %s may not create %s accounts", actor.Role, opts.Role)
	}
	if !validPNFL(opts.PNFL) {
		return domain.User{}, Validation("pnfl must be 14 digits")
	}
	if opts.FullName == "" {
		return domain.User{}, Validation("full name is required")
	}
	orgRole := opts.Role == domain.RoleOrgHead || opts.Role == domain.RoleOrgOfficer
	if orgRole && opts.OrgID == "" {
		return domain.User{}, Validation("role %s requires an organization", opts.Role)
	}
	if !orgRole && opts.OrgID != "" {
		return domain.User{}, Validation("role %s does not belong to an organization", opts.Role)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	if opts.OrgID != "" {
		org, err := e.Repo.GetOrganizationTx(ctx, tx, opts.OrgID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.User{}, Validation("organization %s not found", opts.OrgID)
			}
			return domain.User{}, err
		}
		if !org.Active {
			return domain.User{}, Validation("organization %s is deactivated", opts.OrgID)
		}
	}
	if _, err := e.Repo.GetUserByPNFLTx(ctx, tx, opts.PNFL); err == nil {
		return domain.User{}, Validation("pnfl already registered")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}

	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	u := domain.User{
		ID:        id,
		PNFL:      opts.PNFL,
		FullName:  opts.FullName,
		Role:      opts.Role,
		Status:    domain.UserPending,
		CreatedAt: e.nowString(),
	}
	if opts.OrgID != "" {
		u.OrgID = &opts.OrgID
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "user.create", map[string]any{
		"role": string(u.Role), "org": opts.OrgID,
	}, "user", u.ID); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// BlockUser suspends an active account. The district head is exempt.
func (e Engine) BlockUser(ctx context.Context, actor domain.Actor, userID string) (domain.User, error) {
	return e.setUserStatus(ctx, actor, userID, domain.UserBlocked, "user.block")
}

// ArchiveUser retires an active account. The district head is exempt.
func (e Engine) ArchiveUser(ctx context.Context, actor domain.Actor, userID string) (domain.User, error) {
	return e.setUserStatus(ctx, actor, userID, domain.UserArchived, "user.archive")
}

func (e Engine) setUserStatus(ctx context.Context, actor domain.Actor, userID string, status domain.UserStatus, auditAction string) (domain.User, error) {
	if !e.Auth.HasPermission(actor.Role, "manage_users") {
		return domain.User{}, rbac.Forbidden("role %s may not manage users", actor.Role)
	}
	if actor.UserID == userID {
		return domain.User{}, Validation("cannot change own account status")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	u, err := e.Repo.GetUserTx(ctx, tx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if u.Role == domain.RoleDistrictHead {
		return domain.User{}, rbac.Forbidden("the district head account is exempt from block and archive")
	}
	if u.Status != domain.UserActive {
		return domain.User{}, InvalidState("user is %s; only active accounts can be %s", u.Status, status)
	}
	u.Status = status
	if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, auditAction, nil, "user", u.ID); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate resolves a user by PNFL for login. The first successful login
// activates a pending account. Blocked and archived accounts are refused.
func (e Engine) Authenticate(ctx context.Context, pnfl string) (domain.User, error) {
	if !validPNFL(pnfl) {
		return domain.User{}, Validation("pnfl must be 14 digits")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	u, err := e.Repo.GetUserByPNFLTx(ctx, tx, pnfl)
	if err != nil {
		return domain.User{}, err
	}
	switch u.Status {
	case domain.UserBlocked:
		return domain.User{}, rbac.Forbidden("account is blocked")
	case domain.UserArchived:
		return domain.User{}, rbac.Forbidden("account is archived")
	case domain.UserPending:
		now := e.now().UTC().Format(time.RFC3339)
		u.Status = domain.UserActive
		u.ActivatedAt = &now
		if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
			return domain.User{}, err
		}
		if err := e.Journal.Audit(ctx, tx, u.ID, "auth.login", map[string]any{"first_login": true}, "user", u.ID); err != nil {
			return domain.User{}, err
		}
	default:
		if err := e.Journal.Audit(ctx, tx, u.ID, "auth.login", nil, "user", u.ID); err != nil {
			return domain.User{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}
