package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gradeflow/internal/review/github"
	"gradeflow/internal/review/model"
	"gradeflow/internal/review/repository"
	appErr "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/logger"

	"go.uber.org/zap"
)

// IntakeOutcome tells what intake did with a change-request.
type IntakeOutcome string

const (
	IntakeCreated   IntakeOutcome = "created"
	IntakeDuplicate IntakeOutcome = "duplicate"
	IntakeRejected  IntakeOutcome = "rejected"
)

// IntakeResult describes one handled change-request.
type IntakeResult struct {
	Outcome      IntakeOutcome `json:"outcome"`
	ChangeRef    string        `json:"change_ref"`
	SubmissionID int64         `json:"submission_id,omitempty"`
	JobID        string        `json:"job_id,omitempty"`
	Reason       string        `json:"reason,omitempty"`
}

// Intake turns change-requests into submissions and review jobs.
type Intake struct {
	assignments repository.AssignmentRepository
	submissions repository.SubmissionRepository
	dispatcher  repository.JobDispatcher
	pulls       PullLister
	now         func() time.Time
}

// IntakeConfig holds intake dependencies. Pulls is only needed by ImportOpen.
type IntakeConfig struct {
	Assignments repository.AssignmentRepository
	Submissions repository.SubmissionRepository
	Dispatcher  repository.JobDispatcher
	Pulls       PullLister
	Now         func() time.Time
}

func NewIntake(cfg IntakeConfig) (*Intake, error) {
	if cfg.Assignments == nil {
		return nil, fmt.Errorf("assignment repository is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("job dispatcher is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Intake{
		assignments: cfg.Assignments,
		submissions: cfg.Submissions,
		dispatcher:  cfg.Dispatcher,
		pulls:       cfg.Pulls,
		now:         now,
	}, nil
}

// HandleEvent runs intake for a webhook event. Events other than an opened,
// reopened or updated change are rejected.
func (i *Intake) HandleEvent(ctx context.Context, ev github.PullRequestEvent) (IntakeResult, error) {
	if !ev.Actionable() {
		return IntakeResult{
			Outcome:   IntakeRejected,
			ChangeRef: ev.PullRequest.HTMLURL,
			Reason:    fmt.Sprintf("action %q is not reviewed", ev.Action),
		}, nil
	}
	return i.intake(ctx, ev.PullRequest, ev.Pushed())
}

// HandlePullRequest records a submission for pr and dispatches its review.
// A change that was already recorded for the same assignment is reported as
// a duplicate and not dispatched again.
func (i *Intake) HandlePullRequest(ctx context.Context, pr github.PullRequest) (IntakeResult, error) {
	return i.intake(ctx, pr, false)
}

// intake records pr. With again set, a duplicate that is not merged yet is
// dispatched for another review.
func (i *Intake) intake(ctx context.Context, pr github.PullRequest, again bool) (IntakeResult, error) {
	res := IntakeResult{ChangeRef: pr.HTMLURL}
	if pr.HTMLURL == "" || pr.User.Login == "" {
		return res, appErr.ValidationError("pull_request", "html_url and user are required")
	}
	if pr.Merged {
		res.Outcome = IntakeRejected
		res.Reason = "already merged"
		return res, nil
	}

	assignment, err := i.assignments.FindByCodes(ctx, strings.Fields(pr.Body))
	if err != nil {
		return res, err
	}
	if assignment == nil {
		res.Outcome = IntakeRejected
		res.Reason = "no assignment code in the description"
		logger.Info(ctx, "change without assignment code", zap.String("change_ref", pr.HTMLURL))
		return res, nil
	}

	sub := &model.Submission{
		AssignmentID: assignment.ID,
		Author:       pr.User.Login,
		AuthorID:     pr.User.ID,
		ChangeRef:    pr.HTMLURL,
		Description:  pr.Body,
	}
	if err := i.submissions.Create(ctx, sub); err != nil {
		if !appErr.Is(err, appErr.SubmissionDuplicate) {
			return res, err
		}
		existing, lookupErr := i.submissions.GetByChangeRef(ctx, assignment.ID, pr.HTMLURL)
		if lookupErr != nil {
			return res, lookupErr
		}
		res.Outcome = IntakeDuplicate
		res.SubmissionID = existing.ID
		if !again || existing.Merged {
			return res, nil
		}
		job, err := i.dispatcher.Dispatch(ctx, model.ReviewJob{
			SubmissionID: existing.ID,
			RequestedBy:  pr.User.Login,
			EnqueuedAt:   i.now().Unix(),
		})
		if err != nil {
			return res, err
		}
		logger.Info(ctx, "submission updated",
			zap.Int64("submission_id", existing.ID),
			zap.String("job_id", job.JobID))
		res.JobID = job.JobID
		return res, nil
	}

	job, err := i.dispatcher.Dispatch(ctx, model.ReviewJob{
		SubmissionID: sub.ID,
		RequestedBy:  pr.User.Login,
		EnqueuedAt:   i.now().Unix(),
	})
	if err != nil {
		return res, err
	}
	logger.Info(ctx, "submission created",
		zap.Int64("submission_id", sub.ID),
		zap.String("assignment", assignment.Code),
		zap.String("author", sub.Author),
		zap.String("job_id", job.JobID))
	res.Outcome = IntakeCreated
	res.SubmissionID = sub.ID
	res.JobID = job.JobID
	return res, nil
}

// ImportOpen runs intake for every open change-request. A failure on one
// change is recorded as a rejection and does not stop the import.
func (i *Intake) ImportOpen(ctx context.Context) ([]IntakeResult, error) {
	if i.pulls == nil {
		return nil, appErr.New(appErr.ServiceUnavailable).WithMessage("change provider is not configured")
	}
	pulls, err := i.pulls.ListOpenPulls(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]IntakeResult, 0, len(pulls))
	for _, pr := range pulls {
		res, err := i.HandlePullRequest(ctx, pr)
		if err != nil {
			logger.Warn(ctx, "import change failed", zap.String("change_ref", pr.HTMLURL), zap.Error(err))
			res.Outcome = IntakeRejected
			res.Reason = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// Rerun dispatches another review of a recorded submission.
func (i *Intake) Rerun(ctx context.Context, submissionID int64, force bool, requestedBy string) (model.ReviewJob, error) {
	if submissionID <= 0 {
		return model.ReviewJob{}, appErr.ValidationError("submission_id", "required")
	}
	if _, err := i.submissions.GetByID(ctx, submissionID); err != nil {
		return model.ReviewJob{}, err
	}
	return i.dispatcher.Dispatch(ctx, model.ReviewJob{
		SubmissionID: submissionID,
		Force:        force,
		RequestedBy:  requestedBy,
		EnqueuedAt:   i.now().Unix(),
	})
}
