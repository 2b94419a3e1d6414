package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garnizeh/taosdlc/internal/models"
)

const phaseColumns = `id, project_id, phase_number, phase_name, status, data, ai_confidence_score, approval_round, start_date, end_date, estimated_hours, actual_hours, created, updated`

func (r *SQLiteRepo) CreatePhase(ctx context.Context, p *models.Phase) (int64, error) {
	if p == nil {
		return 0, fmt.Errorf("phase is nil")
	}
	if p.Status == "" {
		p.Status = models.PhaseNotStarted
	}

	ts := now()
	res, err := r.q.ExecContext(ctx, `INSERT INTO phases (project_id, phase_number, phase_name, status, data, ai_confidence_score, approval_round, start_date, end_date, estimated_hours, actual_hours, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ProjectID, p.PhaseNumber, p.PhaseName, p.Status, phaseData(p.Data), ptrArg(p.AIConfidenceScore), p.ApprovalRound,
		ptrArg(p.StartDate), ptrArg(p.EndDate), ptrArg(p.EstimatedHours), ptrArg(p.ActualHours), ts, ts)
	if err != nil {
		return 0, wrapWriteErr("create phase", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetPhase(ctx context.Context, id int64) (*models.Phase, error) {
	p, err := scanPhase(r.q.QueryRowContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *SQLiteRepo) GetPhaseByNumber(ctx context.Context, projectID int64, phaseNumber int) (*models.Phase, error) {
	p, err := scanPhase(r.q.QueryRowContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE project_id = ? AND phase_number = ?`, projectID, phaseNumber))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *SQLiteRepo) ListPhasesByProject(ctx context.Context, projectID int64) ([]models.Phase, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+phaseColumns+` FROM phases WHERE project_id = ? ORDER BY phase_number`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Phase
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}

	return out, rows.Err()
}

// UpdatePhase writes every mutable column of p. Identity columns are never changed.
func (r *SQLiteRepo) UpdatePhase(ctx context.Context, p *models.Phase) error {
	if p == nil {
		return fmt.Errorf("phase is nil")
	}

	ts := now()
	res, err := r.q.ExecContext(ctx, `UPDATE phases SET status = ?, data = ?, ai_confidence_score = ?, approval_round = ?, start_date = ?, end_date = ?, estimated_hours = ?, actual_hours = ?, updated = ? WHERE id = ?`,
		p.Status, phaseData(p.Data), ptrArg(p.AIConfidenceScore), p.ApprovalRound, ptrArg(p.StartDate), ptrArg(p.EndDate),
		ptrArg(p.EstimatedHours), ptrArg(p.ActualHours), ts, p.ID)
	if err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	p.Updated = ts

	return nil
}

func phaseData(d json.RawMessage) string {
	if len(d) == 0 {
		return "{}"
	}
	return string(d)
}

func scanPhase(row rowScanner) (*models.Phase, error) {
	var (
		p          models.Phase
		data       string
		confidence sql.NullInt64
		start, end sql.NullInt64
		est, act   sql.NullFloat64
	)
	if err := row.Scan(&p.ID, &p.ProjectID, &p.PhaseNumber, &p.PhaseName, &p.Status, &data, &confidence, &p.ApprovalRound,
		&start, &end, &est, &act, &p.Created, &p.Updated); err != nil {
		return nil, err
	}
	p.Data = json.RawMessage(data)
	p.AIConfidenceScore = nullIntPtr(confidence)
	p.StartDate = nullInt64Ptr(start)
	p.EndDate = nullInt64Ptr(end)
	p.EstimatedHours = nullFloatPtr(est)
	p.ActualHours = nullFloatPtr(act)

	return &p, nil
}
