package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gradeflow/internal/common/cache"
	"gradeflow/internal/review/model"
	appErr "gradeflow/pkg/errors"
)

const (
	statusKeyPrefix  = "review:status:"
	defaultStatusTTL = 7 * 24 * time.Hour
)

// StatusRepository keeps the latest review status of each submission.
type StatusRepository struct {
	cache cache.BasicOps
	TTL   time.Duration
}

func NewStatusRepository(cacheClient cache.BasicOps, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, TTL: ttl}
}

func statusKey(submissionID int64) string {
	return statusKeyPrefix + strconv.FormatInt(submissionID, 10)
}

// Get returns the status of a submission's latest review.
func (r *StatusRepository) Get(ctx context.Context, submissionID int64) (model.ReviewStatus, error) {
	if submissionID <= 0 {
		return model.ReviewStatus{}, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return model.ReviewStatus{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, err := r.cache.Get(ctx, statusKey(submissionID))
	if err != nil {
		return model.ReviewStatus{}, appErr.Wrapf(err, appErr.CacheError, "read status failed")
	}
	if val == "" {
		return model.ReviewStatus{}, appErr.New(appErr.NotFound).WithMessage("review status not found")
	}
	var status model.ReviewStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return model.ReviewStatus{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return status, nil
}

// Save stores status, replacing the previous one.
func (r *StatusRepository) Save(ctx context.Context, status model.ReviewStatus) error {
	if status.SubmissionID <= 0 {
		return appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if err := r.cache.Set(ctx, statusKey(status.SubmissionID), string(data), r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}
