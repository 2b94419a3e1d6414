package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/taosdlc/internal/models"
)

func (r *SQLiteRepo) CreateTransition(ctx context.Context, t *models.PhaseTransition) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("transition is nil")
	}

	ts := now()
	res, err := r.q.ExecContext(ctx, `INSERT INTO phase_transitions (phase_id, from_status, to_status, actor_id, reason, created) VALUES (?, ?, ?, ?, ?, ?)`,
		t.PhaseID, t.From, t.To, ptrArg(t.ActorID), t.Reason, ts)
	if err != nil {
		return 0, fmt.Errorf("record transition: %w", err)
	}
	t.Created = ts

	return res.LastInsertId()
}

func (r *SQLiteRepo) ListTransitionsByPhase(ctx context.Context, phaseID int64) ([]models.PhaseTransition, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, phase_id, from_status, to_status, actor_id, reason, created FROM phase_transitions WHERE phase_id = ? ORDER BY id`, phaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PhaseTransition
	for rows.Next() {
		var t models.PhaseTransition
		var actor sql.NullInt64
		if err := rows.Scan(&t.ID, &t.PhaseID, &t.From, &t.To, &actor, &t.Reason, &t.Created); err != nil {
			return nil, err
		}
		t.ActorID = nullInt64Ptr(actor)
		out = append(out, t)
	}

	return out, rows.Err()
}
