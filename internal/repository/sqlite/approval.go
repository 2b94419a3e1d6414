package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/taosdlc/internal/models"
)

const approvalColumns = `a.id, a.phase_id, a.approver_id, a.round, a.status, a.comments, a.approved_at, a.created`

func (r *SQLiteRepo) CreateApproval(ctx context.Context, a *models.Approval) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("approval is nil")
	}
	if a.Status == "" {
		a.Status = models.ApprovalPending
	}

	ts := now()
	res, err := r.q.ExecContext(ctx, `INSERT INTO approvals (phase_id, approver_id, round, status, comments, approved_at, created) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.PhaseID, a.ApproverID, a.Round, a.Status, a.Comments, ptrArg(a.ApprovedAt), ts)
	if err != nil {
		return 0, wrapWriteErr("create approval", err)
	}
	a.Created = ts

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetApproval(ctx context.Context, id int64) (*models.Approval, error) {
	a, err := scanApproval(r.q.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approvals a WHERE a.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (r *SQLiteRepo) ListApprovalsByPhase(ctx context.Context, phaseID int64, round int) ([]models.Approval, error) {
	if round <= 0 {
		return r.listApprovals(ctx, `SELECT `+approvalColumns+` FROM approvals a WHERE a.phase_id = ? ORDER BY a.round, a.id`, phaseID)
	}
	return r.listApprovals(ctx, `SELECT `+approvalColumns+` FROM approvals a WHERE a.phase_id = ? AND a.round = ? ORDER BY a.id`, phaseID, round)
}

func (r *SQLiteRepo) ListPendingByApprover(ctx context.Context, approverID int64) ([]models.Approval, error) {
	return r.listApprovals(ctx, `SELECT `+approvalColumns+` FROM approvals a
		JOIN phases p ON p.id = a.phase_id
		WHERE a.approver_id = ? AND a.status = 'pending' AND a.round = p.approval_round
			AND p.status NOT IN ('not_started', 'in_progress')
		ORDER BY a.created, a.id`, approverID)
}

func (r *SQLiteRepo) ResolveApproval(ctx context.Context, id int64, status models.ApprovalStatus, comments string, at int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE approvals SET status = ?, comments = ?, approved_at = ? WHERE id = ? AND status = 'pending'`, status, comments, at, id)
	if err != nil {
		return false, fmt.Errorf("resolve approval: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLiteRepo) listApprovals(ctx context.Context, query string, args ...any) ([]models.Approval, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}

	return out, rows.Err()
}

func scanApproval(row rowScanner) (*models.Approval, error) {
	var a models.Approval
	var at sql.NullInt64
	if err := row.Scan(&a.ID, &a.PhaseID, &a.ApproverID, &a.Round, &a.Status, &a.Comments, &at, &a.Created); err != nil {
		return nil, err
	}
	a.ApprovedAt = nullInt64Ptr(at)
	return &a, nil
}
