package pipeline

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gradeflow/internal/review/classify"
	"gradeflow/internal/review/evaluate"
	"gradeflow/internal/review/model"
	"gradeflow/internal/review/report"
	"gradeflow/internal/review/repository"
	"gradeflow/internal/review/scoring"
	"gradeflow/internal/review/workspace"
	appErr "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/contextkey"
	"gradeflow/pkg/utils/logger"

	"go.uber.org/zap"
)

// Selector sorts a change-set into task files and rejected files.
type Selector interface {
	Select(paths []string, author model.Student, assignment model.Assignment) classify.Selection
}

// Orchestrator runs the review of one submission end to end.
type Orchestrator struct {
	submissions     repository.SubmissionRepository
	assignments     repository.AssignmentRepository
	students        StudentFinder
	provider        ChangeProvider
	workspaces      Workspaces
	selector        Selector
	evaluator       Evaluator
	grades          GradeSyncer
	policy          *report.Policy
	status          StatusStore
	publisher       repository.StatusEventPublisher
	artifacts       repository.ArtifactStore
	statusTimeout   time.Duration
	artifactTimeout time.Duration
	now             func() time.Time
}

// OrchestratorConfig holds the collaborators of a review. Grades, Status,
// Publisher and Artifacts are optional.
type OrchestratorConfig struct {
	Submissions     repository.SubmissionRepository
	Assignments     repository.AssignmentRepository
	Students        StudentFinder
	Provider        ChangeProvider
	Workspaces      Workspaces
	Selector        Selector
	Evaluator       Evaluator
	Grades          GradeSyncer
	Policy          *report.Policy
	Status          StatusStore
	Publisher       repository.StatusEventPublisher
	Artifacts       repository.ArtifactStore
	StatusTimeout   time.Duration
	ArtifactTimeout time.Duration
	Now             func() time.Time
}

// NewOrchestrator validates cfg and builds an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Assignments == nil {
		return nil, fmt.Errorf("assignment repository is required")
	}
	if cfg.Students == nil {
		return nil, fmt.Errorf("student finder is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("change provider is required")
	}
	if cfg.Workspaces == nil {
		return nil, fmt.Errorf("workspaces are required")
	}
	if cfg.Selector == nil {
		return nil, fmt.Errorf("selector is required")
	}
	if cfg.Evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	policy := cfg.Policy
	if policy == nil {
		policy = report.NewPolicy(report.DefaultMergeConfig())
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		submissions:     cfg.Submissions,
		assignments:     cfg.Assignments,
		students:        cfg.Students,
		provider:        cfg.Provider,
		workspaces:      cfg.Workspaces,
		selector:        cfg.Selector,
		evaluator:       cfg.Evaluator,
		grades:          cfg.Grades,
		policy:          policy,
		status:          cfg.Status,
		publisher:       cfg.Publisher,
		artifacts:       cfg.Artifacts,
		statusTimeout:   cfg.StatusTimeout,
		artifactTimeout: cfg.ArtifactTimeout,
		now:             now,
	}, nil
}

// reviewRun is the mutable state of one Run.
type reviewRun struct {
	job        model.ReviewJob
	tracker    *tracker
	sub        *model.Submission
	assignment *model.Assignment
	student    *model.Student
	patch      []byte
	report     string
	result     model.ReviewResult

	// commented is set once a comment was attempted; delivered once it
	// reached the provider.
	commented bool
	delivered bool
}

// Run reviews the submission named by job. Every run ends in a terminal
// state and posts at most one comment. Failures that were explained to the
// author through a comment are not returned.
func (o *Orchestrator) Run(ctx context.Context, job model.ReviewJob) (model.ReviewStatus, error) {
	ctx = context.WithValue(ctx, contextkey.SubmissionID, job.SubmissionID)
	ctx = context.WithValue(ctx, contextkey.JobID, job.JobID)

	rv := &reviewRun{
		job:     job,
		tracker: newTracker(job, o.status, o.publisher, o.statusTimeout, o.now),
	}
	rv.tracker.save(ctx)

	err := o.review(ctx, rv)
	if err != nil {
		err = o.recover(ctx, rv, err)
	}
	return rv.tracker.finish(ctx), err
}

func (o *Orchestrator) review(ctx context.Context, rv *reviewRun) error {
	sub, err := o.submissions.GetByID(ctx, rv.job.SubmissionID)
	if err != nil {
		return err
	}
	rv.sub = sub
	assignment, err := o.assignments.GetByID(ctx, sub.AssignmentID)
	if err != nil {
		return err
	}
	rv.assignment = assignment

	merged := sub.Merged
	if !merged {
		if merged, err = o.provider.IsMerged(ctx, sub.ChangeRef); err != nil {
			return err
		}
	}
	if merged {
		logger.Info(ctx, "submission already merged, skipping", zap.String("change_ref", sub.ChangeRef))
		rv.tracker.advance(ctx, model.StateSkipped)
		return nil
	}

	student, err := o.students.FindByGitHub(ctx, sub.Author)
	if err != nil {
		return err
	}
	if student == nil {
		logger.Info(ctx, "unknown author", zap.String("author", sub.Author))
		if err := o.comment(ctx, rv, report.UnknownAuthor(sub.Author)); err != nil {
			return err
		}
		if err := o.provider.Close(ctx, sub.ChangeRef); err != nil {
			logger.Warn(ctx, "close change failed", zap.Error(err))
		}
		rv.tracker.fail(ctx, appErr.New(appErr.AuthorNotFound).WithDetail("author", sub.Author))
		rv.tracker.advance(ctx, model.StateAborted)
		return nil
	}
	rv.student = student
	if !assignment.Accepts(student.Class) {
		if err := o.comment(ctx, rv, report.NotAccepted(sub.Author, assignment.Name)); err != nil {
			return err
		}
		rv.tracker.advance(ctx, model.StateAborted)
		return nil
	}

	files, err := o.provider.ChangedFiles(ctx, sub.ChangeRef)
	if err != nil {
		return err
	}
	patch, err := o.provider.Patch(ctx, sub.ChangeRef)
	if err != nil {
		return err
	}
	rv.patch = patch

	err = o.workspaces.WithWorkspace(ctx, sub.Author, sub.ID, func(ctx context.Context, tree *workspace.Tree) error {
		rv.tracker.advance(ctx, model.StateWorkspaceReady)
		if err := o.workspaces.Apply(ctx, tree, patch); err != nil {
			rv.tracker.advance(ctx, model.StatePatchFailed)
			return err
		}
		rv.tracker.advance(ctx, model.StatePatched)
		return o.grade(ctx, rv, tree, files)
	})
	if s := rv.tracker.state(); s == model.StateMerged || s == model.StateHeld || rv.sub.Merged {
		o.record(ctx, rv)
	}
	return err
}

// grade runs the steps from classification to the merge decision inside the
// workspace.
func (o *Orchestrator) grade(ctx context.Context, rv *reviewRun, tree *workspace.Tree, files []string) error {
	student, assignment := *rv.student, *rv.assignment

	sel := o.selector.Select(files, student, assignment)
	rv.tracker.advance(ctx, model.StateClassified)

	tasks := append([]model.Task(nil), assignment.Tasks...)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Number < tasks[j].Number })
	results := make([]model.TaskResult, 0, len(tasks))
	for _, task := range tasks {
		file, ok := sel.Files[task.Number]
		if !ok {
			results = append(results, evaluate.Unsubmitted(task))
			continue
		}
		results = append(results, o.evaluator.Evaluate(ctx, tree.Dir, file, task))
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	rv.tracker.advance(ctx, model.StateEvaluated)

	earned, max := scoring.Apply(results)
	rv.tracker.totals(earned, max)
	rv.result = model.ReviewResult{Tasks: results, Issues: sel.Issues, Earned: earned, Max: max}

	ratio := assignment.ScoreRatio(o.now())
	var notes []string
	if ratio < 1 {
		notes = append(notes, fmt.Sprintf("The deadline has passed, the gradebook keeps %g%% of these points.", ratio*100))
	}
	if o.grades != nil {
		stored, err := o.grades.Sync(ctx, student, assignment, results)
		if err != nil {
			logger.Warn(ctx, "gradebook sync failed", zap.Error(err))
			notes = append(notes, "The gradebook could not be updated, a teacher will record the grade.")
		} else {
			rv.tracker.stored(stored)
		}
	}
	rv.tracker.advance(ctx, model.StateScored)

	in := report.DecisionInput{Earned: earned, Max: max, Ratio: ratio, Force: rv.job.Force}
	if !rv.job.Force && o.policy.Meets(earned, max, ratio) {
		mergeable, err := o.provider.IsMergeable(ctx, rv.sub.ChangeRef)
		if err != nil {
			logger.Warn(ctx, "mergeable check failed", zap.Error(err))
		}
		in.Mergeable = mergeable
	}
	decision := o.policy.Decide(in)

	// The report states the merge outcome, so the merge runs first.
	merged := false
	if decision.Merge {
		ok, err := o.provider.Merge(ctx, rv.sub.ChangeRef, o.policy.Message(rv.sub.ID), o.policy.Squash())
		switch {
		case err != nil:
			rv.tracker.fail(ctx, err)
		case !ok:
			logger.Warn(ctx, "merge refused by provider", zap.String("change_ref", rv.sub.ChangeRef))
		default:
			merged = true
		}
		if !merged {
			decision = report.Refused(decision)
		}
	}
	rv.sub.Merged = merged
	rv.sub.Grade = earned

	rv.report = report.Render(report.Input{
		SubmissionID: rv.sub.ID,
		Assignment:   assignment.Name,
		Result:       rv.result,
		Notes:        notes,
		Decision:     decision,
	})
	if err := o.comment(ctx, rv, rv.report); err != nil {
		return err
	}
	rv.tracker.advance(ctx, model.StateReported)
	if merged {
		rv.tracker.advance(ctx, model.StateMerged)
	} else {
		rv.tracker.advance(ctx, model.StateHeld)
	}
	return nil
}

// record stores the outcome of a finished review. Failures are logged only,
// the author has already been told.
func (o *Orchestrator) record(ctx context.Context, rv *reviewRun) {
	ctx = context.WithoutCancel(ctx)
	if err := o.submissions.RecordReview(ctx, rv.sub.ID, rv.sub.Grade, rv.sub.Merged, rv.sub.Description); err != nil {
		logger.Error(ctx, "record review failed", zap.Error(err))
	}
	if o.artifacts == nil {
		return
	}
	result, err := json.MarshalIndent(rv.result, "", "  ")
	if err != nil {
		logger.Warn(ctx, "encode review result failed", zap.Error(err))
		return
	}
	actx := ctx
	if o.artifactTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, o.artifactTimeout)
		defer cancel()
	}
	key, err := o.artifacts.Save(actx, rv.sub.ID, rv.job.JobID, map[string][]byte{
		"patch.diff":  rv.patch,
		"report.md":   []byte(rv.report),
		"result.json": result,
	})
	if err != nil {
		logger.Warn(ctx, "save review artifacts failed", zap.Error(err))
		return
	}
	logger.Debug(ctx, "review artifacts saved", zap.String("key", key))
}

// recover explains a failed review to the author, once, and aborts it.
func (o *Orchestrator) recover(ctx context.Context, rv *reviewRun, err error) error {
	ctx = context.WithoutCancel(ctx)
	rv.tracker.fail(ctx, err)
	if rv.sub != nil && !rv.commented {
		text := report.InternalFailure(rv.sub.ID, appErr.GetError(err).Error())
		if isToolTrouble(err) {
			text = report.ToolTrouble(rv.sub.ID, diagnostic(err))
		}
		if cerr := o.comment(ctx, rv, text); cerr != nil {
			logger.Error(ctx, "post failure comment failed", zap.Error(cerr))
		}
	}
	if rv.tracker.state().CanTransition(model.StateAborted) {
		rv.tracker.advance(ctx, model.StateAborted)
	}
	if rv.delivered || appErr.Is(err, appErr.SubmissionNotFound) {
		return nil
	}
	return err
}

func (o *Orchestrator) comment(ctx context.Context, rv *reviewRun, text string) error {
	rv.commented = true
	if err := o.provider.Comment(ctx, rv.sub.ChangeRef, text); err != nil {
		return err
	}
	rv.delivered = true
	return nil
}

func isToolTrouble(err error) bool {
	return appErr.Is(err, appErr.VCSOperationFailed) ||
		appErr.Is(err, appErr.PatchApplyFailed) ||
		appErr.Is(err, appErr.WorkspaceBusy) ||
		appErr.Is(err, appErr.LockFailed)
}

// diagnostic is the tool output carried by err, or its message.
func diagnostic(err error) string {
	var e *appErr.Error
	if stderrors.As(err, &e) {
		if out, ok := e.Details["output"].(string); ok && strings.TrimSpace(out) != "" {
			return out
		}
	}
	return err.Error()
}
