package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ijro/internal/config"
	"ijro/internal/domain"
	"ijro/internal/repo"
)

const (
	// BootstrapAdminPNFL is the identity of the seeded administrator until a
	// real one is provisioned.
	BootstrapAdminPNFL = "00000000000000"
	bootstrapAdminID   = "admin"
	hokimiyatOrgID     = "hokimiyat"
)

// ResolveConfig loads the district config, preferring the stored copy, then
// ijro.yml in the workspace, then seeded defaults. The DB copy wins so that
// settings imported through the API survive restarts.
func ResolveConfig(ctx context.Context, workspace, districtOverride string, r repo.Repo) (*config.Config, error) {
	districtID := districtOverride
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if districtID == "" {
		if fileCfg != nil {
			districtID = fileCfg.District.ID
		} else {
			districtID = "district"
		}
	}
	cfg, err := r.GetDistrictConfig(ctx, districtID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed := fileCfg
	if seed == nil {
		seed = config.Default(districtID)
	}
	if err := r.UpsertDistrictConfig(ctx, districtID, seed); err != nil {
		return nil, fmt.Errorf("seed district config: %w", err)
	}
	return seed, nil
}

// Bootstrap ensures the district has its hokimiyat organization and a usable
// admin account. Safe to call on every start.
func Bootstrap(ctx context.Context, r repo.Repo, cfg *config.Config) error {
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := r.GetOrganizationTx(ctx, tx, hokimiyatOrgID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		name := cfg.District.Name
		if name == "" {
			name = "District hokimiyat"
		}
		o := domain.Organization{ID: hokimiyatOrgID, Name: name, Active: true, CreatedAt: now}
		if err := r.InsertOrganization(ctx, tx, o); err != nil {
			return fmt.Errorf("seed hokimiyat org: %w", err)
		}
	}

	if _, err := r.GetUserByPNFLTx(ctx, tx, BootstrapAdminPNFL); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		admins, err := r.ListUsers(ctx, repo.UserFilters{Role: domain.RoleAdmin})
		if err != nil {
			return err
		}
		if len(admins) == 0 {
			activated := now
			u := domain.User{
				ID:          bootstrapAdminID,
				PNFL:        BootstrapAdminPNFL,
				FullName:    "Bootstrap administrator",
				Role:        domain.RoleAdmin,
				Status:      domain.UserActive,
				CreatedAt:   now,
				ActivatedAt: &activated,
			}
			if err := r.InsertUser(ctx, tx, u); err != nil {
				return fmt.Errorf("seed admin: %w", err)
			}
		}
	}
	return tx.Commit()
}
