package repository

import (
	"context"
	"database/sql"
	"strings"

	"gradeflow/internal/common/db"
	"gradeflow/internal/review/model"
	appErr "gradeflow/pkg/errors"
)

// SubmissionRepository persists submissions and their review outcome.
type SubmissionRepository interface {
	// Create inserts s and sets its ID. A second submission for the same
	// (assignment, change reference) fails with SubmissionDuplicate.
	Create(ctx context.Context, s *model.Submission) error
	GetByID(ctx context.Context, id int64) (*model.Submission, error)
	GetByChangeRef(ctx context.Context, assignmentID int64, changeRef string) (*model.Submission, error)
	// RecordReview stores the result of a finished review.
	RecordReview(ctx context.Context, id int64, grade int, merged bool, description string) error
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

func NewSubmissionRepository(database db.Database) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const submissionColumns = "id, assignment_id, author, author_id, change_ref, merged, grade, description, created_at, updated_at"

func (r *MySQLSubmissionRepository) Create(ctx context.Context, s *model.Submission) error {
	if s == nil {
		return appErr.ValidationError("submission", "required")
	}
	if s.AssignmentID <= 0 {
		return appErr.ValidationError("assignment_id", "required")
	}
	if strings.TrimSpace(s.ChangeRef) == "" {
		return appErr.ValidationError("change_ref", "required")
	}
	if s.Author == "" {
		return appErr.ValidationError("author", "required")
	}

	res, err := r.db.Exec(ctx, `
		INSERT INTO submissions (assignment_id, author, author_id, change_ref, description)
		VALUES (?, ?, ?, ?, ?)`,
		s.AssignmentID, s.Author, s.AuthorID, s.ChangeRef, s.Description)
	if err != nil {
		return db.WriteError(err, "insert submission for %s", s.ChangeRef)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "read submission id")
	}
	s.ID = id
	return nil
}

func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, id int64) (*model.Submission, error) {
	row := r.db.QueryRow(ctx, "SELECT "+submissionColumns+" FROM submissions WHERE id = ?", id)
	s, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithDetail("submission_id", id)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission %d", id)
	}
	return s, nil
}

func (r *MySQLSubmissionRepository) GetByChangeRef(ctx context.Context, assignmentID int64, changeRef string) (*model.Submission, error) {
	row := r.db.QueryRow(ctx,
		"SELECT "+submissionColumns+" FROM submissions WHERE assignment_id = ? AND change_ref = ?", assignmentID, changeRef)
	s, err := scanSubmission(row)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, appErr.New(appErr.SubmissionNotFound).WithDetail("change_ref", changeRef)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "load submission for %s", changeRef)
	}
	return s, nil
}

func (r *MySQLSubmissionRepository) RecordReview(ctx context.Context, id int64, grade int, merged bool, description string) error {
	_, err := r.db.Exec(ctx,
		"UPDATE submissions SET grade = ?, merged = ?, description = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		grade, merged, description, id)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "record review of submission %d", id)
	}
	return nil
}

func scanSubmission(row db.Row) (*model.Submission, error) {
	var (
		s    model.Submission
		desc sql.NullString
	)
	if err := row.Scan(&s.ID, &s.AssignmentID, &s.Author, &s.AuthorID, &s.ChangeRef,
		&s.Merged, &s.Grade, &desc, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Description = desc.String
	return &s, nil
}
