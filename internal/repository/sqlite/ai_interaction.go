package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/taosdlc/internal/models"
)

const aiInteractionColumns = `id, project_id, phase_id, user_id, user_query, ai_response, confidence_score, accepted, created`

func (r *SQLiteRepo) CreateAIInteraction(ctx context.Context, in *models.AIInteraction) (int64, error) {
	if in == nil {
		return 0, fmt.Errorf("ai interaction is nil")
	}

	ts := now()
	res, err := r.q.ExecContext(ctx, `INSERT INTO ai_interactions (project_id, phase_id, user_id, user_query, ai_response, confidence_score, accepted, created) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ProjectID, ptrArg(in.PhaseID), ptrArg(in.UserID), in.UserQuery, in.AIResponse, in.ConfidenceScore, boolToInt(in.Accepted), ts)
	if err != nil {
		return 0, wrapWriteErr("create ai interaction", err)
	}
	in.Created = ts

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetAIInteraction(ctx context.Context, id int64) (*models.AIInteraction, error) {
	in, err := scanAIInteraction(r.q.QueryRowContext(ctx, `SELECT `+aiInteractionColumns+` FROM ai_interactions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return in, err
}

func (r *SQLiteRepo) ListAIInteractionsByPhase(ctx context.Context, phaseID int64) ([]models.AIInteraction, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+aiInteractionColumns+` FROM ai_interactions WHERE phase_id = ? ORDER BY id`, phaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.AIInteraction
	for rows.Next() {
		in, err := scanAIInteraction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *in)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) MarkAIInteractionAccepted(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE ai_interactions SET accepted = 1 WHERE id = ? AND accepted = 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanAIInteraction(row rowScanner) (*models.AIInteraction, error) {
	var (
		in       models.AIInteraction
		phaseID  sql.NullInt64
		userID   sql.NullInt64
		accepted int
	)
	if err := row.Scan(&in.ID, &in.ProjectID, &phaseID, &userID, &in.UserQuery, &in.AIResponse, &in.ConfidenceScore, &accepted, &in.Created); err != nil {
		return nil, err
	}
	in.PhaseID = nullInt64Ptr(phaseID)
	in.UserID = nullInt64Ptr(userID)
	in.Accepted = accepted != 0

	return &in, nil
}
