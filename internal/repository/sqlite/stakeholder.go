package sqlite

import (
	"context"
	"fmt"

	"github.com/garnizeh/taosdlc/internal/models"
)

func (r *SQLiteRepo) AddStakeholder(ctx context.Context, s *models.ProjectStakeholder) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("stakeholder is nil")
	}

	res, err := r.q.ExecContext(ctx, `INSERT INTO project_stakeholders (project_id, user_id, role, created) VALUES (?, ?, ?, ?)`, s.ProjectID, s.UserID, s.Role, now())
	if err != nil {
		return 0, wrapWriteErr("add stakeholder", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) RemoveStakeholder(ctx context.Context, projectID, userID int64, role models.StakeholderRole) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM project_stakeholders WHERE project_id = ? AND user_id = ? AND role = ?`, projectID, userID, role)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLiteRepo) ListStakeholders(ctx context.Context, projectID int64) ([]models.ProjectStakeholder, error) {
	return r.listStakeholders(ctx, `SELECT id, project_id, user_id, role, created FROM project_stakeholders WHERE project_id = ? ORDER BY id`, projectID)
}

func (r *SQLiteRepo) ListStakeholdersByRole(ctx context.Context, projectID int64, role models.StakeholderRole) ([]models.ProjectStakeholder, error) {
	return r.listStakeholders(ctx, `SELECT id, project_id, user_id, role, created FROM project_stakeholders WHERE project_id = ? AND role = ? ORDER BY id`, projectID, role)
}

func (r *SQLiteRepo) IsStakeholder(ctx context.Context, projectID, userID int64) (bool, error) {
	var cnt int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM project_stakeholders WHERE project_id = ? AND user_id = ?`, projectID, userID).Scan(&cnt); err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *SQLiteRepo) listStakeholders(ctx context.Context, query string, args ...any) ([]models.ProjectStakeholder, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProjectStakeholder
	for rows.Next() {
		var s models.ProjectStakeholder
		if err := rows.Scan(&s.ID, &s.ProjectID, &s.UserID, &s.Role, &s.Created); err != nil {
			return nil, err
		}
		out = append(out, s)
	}

	return out, rows.Err()
}
