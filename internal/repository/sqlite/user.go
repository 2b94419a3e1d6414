package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/taosdlc/internal/models"
)

const userColumns = `id, email, username, full_name, role, hashed_password, created, updated, deleted_at`

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if u == nil {
		return 0, fmt.Errorf("user is nil")
	}

	ts := now()
	res, err := r.q.ExecContext(ctx, `INSERT INTO users (email, username, full_name, role, hashed_password, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Email, u.Username, u.FullName, u.Role, u.HashedPassword, ts, ts)
	if err != nil {
		return 0, wrapWriteErr("create user", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id))
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email))
}

func (r *SQLiteRepo) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.scanUser(r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username))
}

// SoftDeleteUser hides the user from lookups; approvals and stakeholder rows keep their reference.
func (r *SQLiteRepo) SoftDeleteUser(ctx context.Context, id int64) error {
	ts := now()
	_, err := r.q.ExecContext(ctx, `UPDATE users SET deleted_at = ?, updated = ? WHERE id = ? AND deleted_at IS NULL`, ts, ts, id)
	return err
}

func (r *SQLiteRepo) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var deleted sql.NullInt64
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.FullName, &u.Role, &u.HashedPassword, &u.Created, &u.Updated, &deleted); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}

		return nil, err
	}
	u.DeletedAt = nullInt64Ptr(deleted)

	return &u, nil
}
