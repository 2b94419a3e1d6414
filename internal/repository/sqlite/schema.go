package sqlite

import (
	"context"
	"database/sql"

	"github.com/garnizeh/taosdlc/internal/models"
)

// UpsertPhaseSchema inserts or replaces the content schema of a phase number.
func (r *SQLiteRepo) UpsertPhaseSchema(ctx context.Context, phaseNumber int, description, schemaJSON string) (int64, error) {
	ts := now()
	_, err := r.q.ExecContext(ctx, `INSERT INTO phase_schemas (phase_number, description, schema_json, created, updated) VALUES (?, ?, ?, ?, ?) ON CONFLICT(phase_number) DO UPDATE SET description=excluded.description, schema_json=excluded.schema_json, updated=excluded.updated`,
		phaseNumber, description, schemaJSON, ts, ts)
	if err != nil {
		return 0, err
	}

	// LastInsertId is not reliable on the update branch of an upsert.
	var id int64
	if err := r.q.QueryRowContext(ctx, `SELECT id FROM phase_schemas WHERE phase_number = ?`, phaseNumber).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *SQLiteRepo) GetPhaseSchema(ctx context.Context, phaseNumber int) (*models.PhaseSchema, error) {
	row := r.q.QueryRowContext(ctx, `SELECT id, phase_number, description, schema_json, created, updated FROM phase_schemas WHERE phase_number = ?`, phaseNumber)
	var s models.PhaseSchema
	if err := row.Scan(&s.ID, &s.PhaseNumber, &s.Description, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SQLiteRepo) ListPhaseSchemas(ctx context.Context) ([]models.PhaseSchema, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, phase_number, description, schema_json, created, updated FROM phase_schemas ORDER BY phase_number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PhaseSchema
	for rows.Next() {
		var s models.PhaseSchema
		if err := rows.Scan(&s.ID, &s.PhaseNumber, &s.Description, &s.SchemaJSON, &s.Created, &s.Updated); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) DeletePhaseSchema(ctx context.Context, phaseNumber int) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM phase_schemas WHERE phase_number = ?`, phaseNumber)
	return err
}
