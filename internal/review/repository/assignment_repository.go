package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"gradeflow/internal/common/cache"
	"gradeflow/internal/common/db"
	"gradeflow/internal/review/model"
	appErr "gradeflow/pkg/errors"
)

const (
	defaultAssignmentCacheTTL      = 10 * time.Minute
	defaultAssignmentCacheEmptyTTL = time.Minute
	assignmentCacheKeyPrefix       = "review:assignment:"
)

// AssignmentRepository reads assignments together with their tasks and
// test cases.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Assignment, error)
	// FindByCodes returns the assignment whose code equals the earliest of
	// tokens that names one, or nil.
	FindByCodes(ctx context.Context, tokens []string) (*model.Assignment, error)
}

// MySQLAssignmentRepository implements AssignmentRepository with MySQL and
// an optional read-through cache.
type MySQLAssignmentRepository struct {
	db       db.Database
	cache    cache.BasicOps
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewAssignmentRepository(database db.Database, cacheClient cache.BasicOps, ttl time.Duration) *MySQLAssignmentRepository {
	if ttl <= 0 {
		ttl = defaultAssignmentCacheTTL
	}
	return &MySQLAssignmentRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: defaultAssignmentCacheEmptyTTL}
}

const assignmentColumns = "id, number, name, type, target, code, start_at, end_at"

func (r *MySQLAssignmentRepository) GetByID(ctx context.Context, id int64) (*model.Assignment, error) {
	if id <= 0 {
		return nil, appErr.ValidationError("assignment_id", "required")
	}
	load := func(ctx context.Context) (*model.Assignment, error) {
		row := r.db.QueryRow(ctx, "SELECT "+assignmentColumns+" FROM assignments WHERE id = ?", id)
		a, err := scanAssignment(row)
		if err != nil {
			if db.IsNoRows(err) {
				return nil, nil
			}
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "load assignment %d", id)
		}
		if err := r.loadTasks(ctx, a); err != nil {
			return nil, err
		}
		return a, nil
	}

	var (
		a   *model.Assignment
		err error
	)
	if r.cache != nil {
		key := assignmentCacheKeyPrefix + strconv.FormatInt(id, 10)
		a, err = cache.GetWithCached(ctx, r.cache, key, r.ttl, r.emptyTTL,
			func(a *model.Assignment) bool { return a == nil }, load)
	} else {
		a, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, appErr.New(appErr.AssignmentNotFound).WithDetail("assignment_id", id)
	}
	return a, nil
}

func (r *MySQLAssignmentRepository) FindByCodes(ctx context.Context, tokens []string) (*model.Assignment, error) {
	seen := make(map[string]bool)
	var codes []string
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		codes = append(codes, t)
	}
	if len(codes) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(codes)), ", ")
	args := make([]interface{}, len(codes))
	for i, c := range codes {
		args[i] = c
	}
	rows, err := r.db.Query(ctx, "SELECT "+assignmentColumns+" FROM assignments WHERE code IN ("+placeholders+")", args...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "find assignment by code")
	}
	defer rows.Close()
	byCode := make(map[string]*model.Assignment)
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan assignment")
		}
		byCode[a.Code] = a
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate assignments")
	}
	for _, c := range codes {
		if a, ok := byCode[c]; ok {
			if err := r.loadTasks(ctx, a); err != nil {
				return nil, err
			}
			return a, nil
		}
	}
	return nil, nil
}

func (r *MySQLAssignmentRepository) loadTasks(ctx context.Context, a *model.Assignment) error {
	rows, err := r.db.Query(ctx,
		"SELECT id, number, title, points FROM tasks WHERE assignment_id = ? ORDER BY number", a.ID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "load tasks of assignment %d", a.ID)
	}
	index := make(map[int64]int)
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Number, &t.Title, &t.Points); err != nil {
			rows.Close()
			return appErr.Wrapf(err, appErr.DatabaseError, "scan task")
		}
		index[t.ID] = len(a.Tasks)
		a.Tasks = append(a.Tasks, t)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "iterate tasks")
	}
	if len(a.Tasks) == 0 {
		return nil
	}

	rows, err = r.db.Query(ctx, `
		SELECT c.task_id, c.input, c.output, c.timeout_ms
		FROM test_cases c JOIN tasks t ON t.id = c.task_id
		WHERE t.assignment_id = ?
		ORDER BY c.task_id, c.position`, a.ID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "load test cases of assignment %d", a.ID)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			taskID    int64
			tc        model.TestCase
			timeoutMs int64
		)
		if err := rows.Scan(&taskID, &tc.Input, &tc.Output, &timeoutMs); err != nil {
			return appErr.Wrapf(err, appErr.DatabaseError, "scan test case")
		}
		tc.Timeout = time.Duration(timeoutMs) * time.Millisecond
		if i, ok := index[taskID]; ok {
			a.Tasks[i].TestCases = append(a.Tasks[i].TestCases, tc)
		}
	}
	if err := rows.Err(); err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "iterate test cases")
	}
	return nil
}

func scanAssignment(row db.Row) (*model.Assignment, error) {
	var (
		a          model.Assignment
		typ        string
		start, end sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Number, &a.Name, &typ, &a.Target, &a.Code, &start, &end); err != nil {
		return nil, err
	}
	a.Type = model.AssignmentType(typ)
	if start.Valid {
		a.Start = start.Time
	}
	if end.Valid {
		a.End = end.Time
	}
	return &a, nil
}
