package repo

import (
	"context"
	"database/sql"

	"ijro/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,pnfl,full_name,role,org_id,status,created_at,activated_at) VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.PNFL, u.FullName, string(u.Role), nullableStringPtr(u.OrgID), string(u.Status), u.CreatedAt, nullableStringPtr(u.ActivatedAt))
	return err
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET full_name=?, role=?, org_id=?, status=?, activated_at=? WHERE id=?`,
		u.FullName, string(u.Role), nullableStringPtr(u.OrgID), string(u.Status), nullableStringPtr(u.ActivatedAt), u.ID)
	return err
}

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var orgID, activatedAt sql.NullString
	err := scan(&u.ID, &u.PNFL, &u.FullName, &u.Role, &orgID, &u.Status, &u.CreatedAt, &activatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	if orgID.Valid {
		u.OrgID = &orgID.String
	}
	if activatedAt.Valid {
		u.ActivatedAt = &activatedAt.String
	}
	return u, nil
}

const userColumns = `id,pnfl,full_name,role,org_id,status,created_at,activated_at`

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByPNFL(ctx context.Context, pnfl string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE pnfl=?`, pnfl)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByPNFLTx(ctx context.Context, tx *sql.Tx, pnfl string) (domain.User, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE pnfl=?`, pnfl)
	return scanUser(row.Scan)
}

type UserFilters struct {
	Role   domain.Role
	OrgID  string
	Status domain.UserStatus
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	var args []any
	if f.Role != "" {
		query += " AND role=?"
		args = append(args, string(f.Role))
	}
	if f.OrgID != "" {
		query += " AND org_id=?"
		args = append(args, f.OrgID)
	}
	if f.Status != "" {
		query += " AND status=?"
		args = append(args, string(f.Status))
	}
	query += " ORDER BY created_at, id"
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// ListActiveOrgUsersTx returns the active members of an organization inside
// the caller's transaction. Used both for notification fan-out and for the
// deactivation precondition.
func (r Repo) ListActiveOrgUsersTx(ctx context.Context, tx *sql.Tx, orgID string) ([]domain.User, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE org_id=? AND status=? ORDER BY created_at, id`, orgID, string(domain.UserActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) CountActiveOrgUsersTx(ctx context.Context, tx *sql.Tx, orgID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE org_id=? AND status=?`, orgID, string(domain.UserActive)).Scan(&n)
	return n, err
}

// ListUsersByRoleTx returns active users holding a role, for district-level
// notification fan-out.
func (r Repo) ListUsersByRoleTx(ctx context.Context, tx *sql.Tx, role domain.Role) ([]domain.User, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role=? AND status=? ORDER BY created_at, id`, string(role), string(domain.UserActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
