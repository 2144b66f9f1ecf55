package repo

import (
	"context"
	"database/sql"

	"ijro/internal/domain"
)

func (r Repo) InsertOrganization(ctx context.Context, tx *sql.Tx, o domain.Organization) error {
	active := 0
	if o.Active {
		active = 1
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO organizations(id,name,active,created_at) VALUES (?,?,?,?)`,
		o.ID, o.Name, active, o.CreatedAt)
	return err
}

func (r Repo) SetOrganizationActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	v := 0
	if active {
		v = 1
	}
	_, err := tx.ExecContext(ctx, `UPDATE organizations SET active=? WHERE id=?`, v, id)
	return err
}

func scanOrganization(scan func(dest ...any) error) (domain.Organization, error) {
	var o domain.Organization
	var active int
	err := scan(&o.ID, &o.Name, &active, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, err
	}
	o.Active = active != 0
	return o, nil
}

func (r Repo) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,name,active,created_at FROM organizations WHERE id=?`, id)
	return scanOrganization(row.Scan)
}

func (r Repo) GetOrganizationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Organization, error) {
	row := tx.QueryRowContext(ctx, `SELECT id,name,active,created_at FROM organizations WHERE id=?`, id)
	return scanOrganization(row.Scan)
}

func (r Repo) ListOrganizations(ctx context.Context, activeOnly bool) ([]domain.Organization, error) {
	query := `SELECT id,name,active,created_at FROM organizations`
	if activeOnly {
		query += ` WHERE active=1`
	}
	query += ` ORDER BY created_at, id`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Organization
	for rows.Next() {
		o, err := scanOrganization(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
