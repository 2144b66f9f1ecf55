package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"ijro/internal/config"
	"ijro/internal/domain"
	"ijro/internal/rbac"
)

// CreateOrganization registers a subordinate organization.
func (e Engine) CreateOrganization(ctx context.Context, actor domain.Actor, id, name string) (domain.Organization, error) {
	if !e.Auth.HasPermission(actor.Role, "manage_orgs") {
		return domain.Organization{}, rbac.Forbidden("role %s may not manage organizations", actor.Role)
	}
	if name == "" {
		return domain.Organization{}, Validation("organization name is required")
	}
	if id == "" {
		id = uuid.New().String()
	}
	o := domain.Organization{
		ID:        id,
		Name:      name,
		Active:    true,
		CreatedAt: e.nowString(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertOrganization(ctx, tx, o); err != nil {
		return domain.Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "org.create", map[string]any{"name": o.Name}, "org", o.ID); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

// DeactivateOrganization retires an organization. It must have no active
// members; block or archive them first.
func (e Engine) DeactivateOrganization(ctx context.Context, actor domain.Actor, orgID string) (domain.Organization, error) {
	if !e.Auth.HasPermission(actor.Role, "manage_orgs") {
		return domain.Organization{}, rbac.Forbidden("role %s may not manage organizations", actor.Role)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	o, err := e.Repo.GetOrganizationTx(ctx, tx, orgID)
	if err != nil {
		return domain.Organization{}, err
	}
	if !o.Active {
		return domain.Organization{}, InvalidState("organization %s is already deactivated", orgID)
	}
	n, err := e.Repo.CountActiveOrgUsersTx(ctx, tx, orgID)
	if err != nil {
		return domain.Organization{}, err
	}
	if n > 0 {
		return domain.Organization{}, InvalidState("organization %s still has %d active member(s)", orgID, n)
	}
	if err := e.Repo.SetOrganizationActive(ctx, tx, orgID, false); err != nil {
		return domain.Organization{}, err
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "org.deactivate", nil, "org", o.ID); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	o.Active = false
	return o, nil
}

// ImportConfig validates and stores new district settings.
func (e Engine) ImportConfig(ctx context.Context, actor domain.Actor, raw []byte) error {
	if !e.Auth.HasPermission(actor.Role, "manage_settings") {
		return rbac.Forbidden("role %s may not manage settings", actor.Role)
	}
	cfg, err := config.FromYAML(raw)
	if err != nil {
		return Validation("%v", err)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := e.Repo.UpsertDistrictConfigTx(ctx, tx, e.Config.District.ID, cfg); err != nil {
		return err
	}
	if err := e.Journal.Audit(ctx, tx, actor.UserID, "settings.update", nil, "config", e.Config.District.ID); err != nil {
		return err
	}
	return tx.Commit()
}
