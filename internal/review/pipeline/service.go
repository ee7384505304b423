package pipeline

import (
	"context"
	"fmt"
	"time"

	"gradeflow/internal/common/mq"
	"gradeflow/internal/review/model"
	"gradeflow/internal/review/repository"
	appErr "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/logger"

	"go.uber.org/zap"
)

// Reviewer runs one review job.
type Reviewer interface {
	Run(ctx context.Context, job model.ReviewJob) (model.ReviewStatus, error)
}

// Service consumes review jobs with a bounded worker pool.
type Service struct {
	reviewer      Reviewer
	queue         mq.Producer
	retryTopic    string
	deadLetter    string
	poolRetryMax  int
	poolRetryBase time.Duration
	poolRetryMaxD time.Duration
	jobTimeout    time.Duration
	slotWait      time.Duration
	sem           chan struct{}
}

// ServiceConfig holds service dependencies and settings. When RetryTopic is
// set, a job arriving while every worker is busy is republished there with
// backoff instead of waiting.
type ServiceConfig struct {
	Reviewer       Reviewer
	Queue          mq.Producer
	RetryTopic     string
	DeadLetter     string
	PoolRetryMax   int
	PoolRetryBase  time.Duration
	PoolRetryMaxD  time.Duration
	JobTimeout     time.Duration
	SlotWait       time.Duration
	WorkerPoolSize int
}

// NewService creates a review worker service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Reviewer == nil {
		return nil, fmt.Errorf("reviewer is required")
	}
	if cfg.RetryTopic != "" && cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required for pool retries")
	}
	poolSize := cfg.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	slotWait := cfg.SlotWait
	if slotWait <= 0 {
		slotWait = 2 * time.Second
	}
	return &Service{
		reviewer:      cfg.Reviewer,
		queue:         cfg.Queue,
		retryTopic:    cfg.RetryTopic,
		deadLetter:    cfg.DeadLetter,
		poolRetryMax:  cfg.PoolRetryMax,
		poolRetryBase: cfg.PoolRetryBase,
		poolRetryMaxD: cfg.PoolRetryMaxD,
		jobTimeout:    cfg.JobTimeout,
		slotWait:      slotWait,
		sem:           make(chan struct{}, poolSize),
	}, nil
}

// HandleMessage processes one queued review job.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	job, err := repository.DecodeJob(msg)
	if err != nil {
		return err
	}

	if !s.tryAcquireSlot() {
		if s.retryTopic != "" {
			return s.requeueForPoolFull(ctx, msg)
		}
		if err := s.acquireSlot(ctx); err != nil {
			return err
		}
	}
	defer s.releaseSlot()

	runCtx := ctx
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}
	status, err := s.reviewer.Run(runCtx, job)
	if err != nil {
		logger.Error(ctx, "review failed",
			zap.Int64("submission_id", job.SubmissionID),
			zap.String("job_id", job.JobID),
			zap.Int("error_code", int(appErr.GetCode(err))),
			zap.Error(err))
		return err
	}
	logger.Info(ctx, "review finished",
		zap.Int64("submission_id", job.SubmissionID),
		zap.String("job_id", job.JobID),
		zap.String("outcome", string(status.Outcome)),
		zap.Int("earned", status.Earned),
		zap.Int("max", status.Max))
	return nil
}
