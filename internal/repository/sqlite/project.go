package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/garnizeh/taosdlc/internal/models"
)

const projectColumns = `id, name, description, current_phase, status, created_by, created, updated`

func (r *SQLiteRepo) CreateProject(ctx context.Context, p *models.Project) (int64, error) {
	if p == nil {
		return 0, fmt.Errorf("project is nil")
	}
	if p.CurrentPhase <= 0 {
		p.CurrentPhase = 1
	}
	if p.Status == "" {
		p.Status = models.ProjectActive
	}

	ts := now()
	var createdBy any
	if p.CreatedBy > 0 {
		createdBy = p.CreatedBy
	}
	res, err := r.q.ExecContext(ctx, `INSERT INTO projects (name, description, current_phase, status, created_by, created, updated) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.CurrentPhase, p.Status, createdBy, ts, ts)
	if err != nil {
		return 0, wrapWriteErr("create project", err)
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

func (r *SQLiteRepo) ListProjects(ctx context.Context, limit, offset int) ([]models.Project, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY id DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) CountProjects(ctx context.Context) (int64, error) {
	var cnt int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM projects`).Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *SQLiteRepo) UpdateProjectProgress(ctx context.Context, id int64, currentPhase int, status models.ProjectStatus) error {
	_, err := r.q.ExecContext(ctx, `UPDATE projects SET current_phase = ?, status = ?, updated = ? WHERE id = ?`, currentPhase, status, now(), id)
	return err
}

// DeleteProject removes the project; phases, stakeholders, approvals and AI
// interactions go with it through ON DELETE CASCADE.
func (r *SQLiteRepo) DeleteProject(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	var createdBy sql.NullInt64
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.CurrentPhase, &p.Status, &createdBy, &p.Created, &p.Updated); err != nil {
		return nil, err
	}
	p.CreatedBy = createdBy.Int64
	return &p, nil
}
