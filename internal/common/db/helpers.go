package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	appErr "gradeflow/pkg/errors"

	"github.com/go-sql-driver/mysql"
)

// Querier is implemented by both Database and Transaction.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// GetQuerier returns tx when set, database otherwise.
func GetQuerier(database Database, tx Transaction) Querier {
	if tx != nil {
		return tx
	}
	return database
}

// IsNoRows checks if the error is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// Unique keys declared in deploy/schema.sql.
const (
	KeyAssignmentCode   = "uk_assignment_code"
	KeyStudentGitHub    = "uk_student_github"
	KeySubmissionChange = "uk_submission_change"
)

const errDuplicateEntry = 1062

// duplicateCodes is the error reported when a write hits a unique key.
var duplicateCodes = map[string]appErr.ErrorCode{
	KeySubmissionChange: appErr.SubmissionDuplicate,
}

// DuplicateKey returns the unique key named by a MySQL duplicate entry
// error, without its table prefix.
func DuplicateKey(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != errDuplicateEntry {
		return "", false
	}
	const marker = "for key "
	idx := strings.LastIndex(myErr.Message, marker)
	if idx == -1 {
		return "", true
	}
	key := strings.Trim(strings.TrimSpace(myErr.Message[idx+len(marker):]), " `\"'")
	if dot := strings.LastIndexByte(key, '.'); dot >= 0 {
		key = key[dot+1:]
	}
	return key, true
}

// WriteError wraps a failed insert or update. A duplicate entry maps to the
// code registered for its key, or RecordAlreadyExists, with the key in the
// details. Anything else is a DatabaseError.
func WriteError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	key, dup := DuplicateKey(err)
	if !dup {
		return appErr.Wrapf(err, appErr.DatabaseError, format, args...)
	}
	code, ok := duplicateCodes[key]
	if !ok {
		code = appErr.RecordAlreadyExists
	}
	return appErr.Wrapf(err, code, format, args...).WithDetail("key", key)
}
