// Package gradebook stores grade formulas in MySQL, one worksheet per class
// section with rows keyed by student name and columns by assignment.
package gradebook

import (
	"context"

	"gradeflow/internal/common/db"
	"gradeflow/internal/review/scoring"
	appErr "gradeflow/pkg/errors"
)

// MySQLGradebook implements scoring.Gradebook.
type MySQLGradebook struct {
	db db.Database
	// AutoCreate adds missing sheets instead of failing.
	AutoCreate bool
}

func NewMySQLGradebook(database db.Database, autoCreate bool) *MySQLGradebook {
	return &MySQLGradebook{db: database, AutoCreate: autoCreate}
}

func (g *MySQLGradebook) SelectSheet(ctx context.Context, name string) (scoring.Sheet, error) {
	if name == "" {
		return nil, appErr.ValidationError("sheet", "required")
	}
	var found string
	err := g.db.QueryRow(ctx, "SELECT name FROM gradebook_sheets WHERE name = ?", name).Scan(&found)
	switch {
	case err == nil:
		return &sheet{db: g.db, name: found}, nil
	case !db.IsNoRows(err):
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "select sheet %s", name)
	case !g.AutoCreate:
		return nil, appErr.New(appErr.GradebookNoSheet).WithDetail("sheet", name)
	}
	if _, err := g.db.Exec(ctx, "INSERT IGNORE INTO gradebook_sheets (name) VALUES (?)", name); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "create sheet %s", name)
	}
	return &sheet{db: g.db, name: name}, nil
}

type sheet struct {
	db   db.Database
	name string
}

func (s *sheet) ReadCell(ctx context.Context, row, col string) (string, error) {
	var formula string
	err := s.db.QueryRow(ctx,
		"SELECT formula FROM gradebook_cells WHERE sheet = ? AND row_key = ? AND col_key = ?",
		s.name, row, col).Scan(&formula)
	if err != nil {
		if db.IsNoRows(err) {
			return "", nil
		}
		return "", appErr.Wrapf(err, appErr.DatabaseError, "read cell %s/%s/%s", s.name, row, col)
	}
	return formula, nil
}

func (s *sheet) WriteCell(ctx context.Context, row, col, formula string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO gradebook_cells (sheet, row_key, col_key, formula)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE formula = VALUES(formula), updated_at = CURRENT_TIMESTAMP`,
		s.name, row, col, formula)
	if err != nil {
		return db.WriteError(err, "write cell %s/%s/%s", s.name, row, col)
	}
	return nil
}
