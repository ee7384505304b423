// Package roster resolves change-request authors to students and imports
// the class lists.
package roster

import (
	"context"
	"strings"
	"time"

	"gradeflow/internal/common/cache"
	"gradeflow/internal/common/db"
	"gradeflow/internal/review/model"
	appErr "gradeflow/pkg/errors"
)

const (
	defaultStudentCacheTTL      = 30 * time.Minute
	defaultStudentCacheEmptyTTL = 2 * time.Minute
	studentCacheKeyPrefix       = "review:student:"
)

// Store reads and writes roster entries. Lookups by GitHub login go through
// the cache when one is configured.
type Store struct {
	db       db.Database
	cache    cache.BasicOps
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewStore(database db.Database, cacheClient cache.BasicOps, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultStudentCacheTTL
	}
	return &Store{db: database, cache: cacheClient, ttl: ttl, emptyTTL: defaultStudentCacheEmptyTTL}
}

const studentColumns = "id, github, github_id, class, number, first_name, last_name"

func cacheKey(login string) string {
	return studentCacheKeyPrefix + strings.ToLower(login)
}

// FindByGitHub returns the student with the given login. A login with no
// roster entry yields (nil, nil).
func (s *Store) FindByGitHub(ctx context.Context, login string) (*model.Student, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, appErr.ValidationError("github", "required")
	}
	load := func(ctx context.Context) (*model.Student, error) {
		row := s.db.QueryRow(ctx, "SELECT "+studentColumns+" FROM students WHERE LOWER(github) = LOWER(?)", login)
		var st model.Student
		if err := row.Scan(&st.ID, &st.GitHub, &st.GitHubID, &st.Class, &st.Number, &st.FirstName, &st.LastName); err != nil {
			if db.IsNoRows(err) {
				return nil, nil
			}
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "load student %s", login)
		}
		return &st, nil
	}
	if s.cache == nil {
		return load(ctx)
	}
	return cache.GetWithCached(ctx, s.cache, cacheKey(login), s.ttl, s.emptyTTL,
		func(st *model.Student) bool { return st == nil }, load)
}

// Upsert inserts st or updates the entry with the same login, and drops the
// cached lookup.
func (s *Store) Upsert(ctx context.Context, tx db.Transaction, st model.Student) error {
	if st.GitHub == "" {
		return appErr.ValidationError("github", "required")
	}
	_, err := db.GetQuerier(s.db, tx).Exec(ctx, `
		INSERT INTO students (github, github_id, class, number, first_name, last_name)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			github_id = VALUES(github_id), class = VALUES(class), number = VALUES(number),
			first_name = VALUES(first_name), last_name = VALUES(last_name)`,
		st.GitHub, st.GitHubID, st.Class, st.Number, st.FirstName, st.LastName)
	if err != nil {
		return db.WriteError(err, "upsert student %s", st.GitHub)
	}
	s.invalidate(ctx, st.GitHub)
	return nil
}

// Transaction runs fn in one database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return s.db.Transaction(ctx, fn)
}

func (s *Store) invalidate(ctx context.Context, login string) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, cacheKey(login))
	}
}
