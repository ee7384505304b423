package pipeline

import (
	"context"
	"time"

	"gradeflow/internal/review/model"
	"gradeflow/internal/review/repository"
	appErr "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/logger"

	"go.uber.org/zap"
)

// tracker walks one review through the state machine and mirrors every
// step to the status store. Store failures are logged and never change the
// review.
type tracker struct {
	status    model.ReviewStatus
	store     StatusStore
	publisher repository.StatusEventPublisher
	timeout   time.Duration
	now       func() time.Time
}

func newTracker(job model.ReviewJob, store StatusStore, publisher repository.StatusEventPublisher, timeout time.Duration, now func() time.Time) *tracker {
	ts := now().Unix()
	return &tracker{
		status: model.ReviewStatus{
			SubmissionID: job.SubmissionID,
			JobID:        job.JobID,
			State:        model.StatePending,
			History:      []model.StateChange{{State: model.StatePending, At: ts}},
			CreatedAt:    ts,
			UpdatedAt:    ts,
		},
		store:     store,
		publisher: publisher,
		timeout:   timeout,
		now:       now,
	}
}

func (t *tracker) state() model.State {
	return t.status.State
}

// advance moves to next. An edge the state machine does not allow is logged
// and still recorded so the status reflects what happened.
func (t *tracker) advance(ctx context.Context, next model.State) {
	cur := t.status.State
	if !cur.CanTransition(next) {
		logger.Error(ctx, "unexpected review transition",
			zap.String("from", string(cur)), zap.String("to", string(next)))
	}
	ts := t.now().Unix()
	t.status.State = next
	t.status.UpdatedAt = ts
	t.status.History = append(t.status.History, model.StateChange{State: next, At: ts})
	switch next {
	case model.StateMerged, model.StateHeld, model.StateAborted, model.StateSkipped:
		t.status.Outcome = next
	}
	logger.Info(ctx, "review state", zap.String("state", string(next)))
	t.save(ctx)
}

func (t *tracker) fail(ctx context.Context, err error) {
	if err == nil {
		return
	}
	t.status.ErrorCode = int(appErr.GetCode(err))
	t.status.ErrorMessage = err.Error()
	if appErr.Is(err, appErr.WorkspaceCleanup) {
		t.status.CleanupFailed = true
		if t.status.State == model.StateMerged || t.status.State == model.StateHeld {
			t.status.ErrorCode = int(appErr.WorkspaceCleanup)
		}
	}
	logger.Warn(ctx, "review failed", zap.String("state", string(t.status.State)), zap.Error(err))
}

func (t *tracker) totals(earned, max int) {
	t.status.Earned = earned
	t.status.Max = max
}

func (t *tracker) stored(points []int) {
	t.status.Stored = points
}

// finish records CLEANED_UP, unless the review ended as a no-op, and
// publishes the final status. A failed cleanup stays visible through
// CleanupFailed.
func (t *tracker) finish(ctx context.Context) model.ReviewStatus {
	ctx = context.WithoutCancel(ctx)
	if !t.status.State.IsTerminal() {
		if t.status.CleanupFailed {
			logger.Error(ctx, "review finished without a clean workspace",
				zap.String("outcome", string(t.status.Outcome)))
		}
		t.advance(ctx, model.StateCleanedUp)
	}
	if t.publisher != nil {
		pctx, cancel := t.withTimeout(ctx)
		defer cancel()
		if err := t.publisher.PublishFinalStatus(pctx, t.status); err != nil {
			logger.Warn(ctx, "publish final status failed", zap.Error(err))
		}
	}
	return t.status
}

func (t *tracker) save(ctx context.Context) {
	if t.store == nil {
		return
	}
	sctx, cancel := t.withTimeout(context.WithoutCancel(ctx))
	defer cancel()
	if err := t.store.Save(sctx, t.status); err != nil {
		logger.Warn(ctx, "save review status failed", zap.Error(err))
	}
}

func (t *tracker) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.timeout > 0 {
		return context.WithTimeout(ctx, t.timeout)
	}
	return context.WithCancel(ctx)
}
