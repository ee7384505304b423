package pipeline_test

import (
	"context"
	"errors"
	"sync"

	"gradeflow/internal/common/mq"
	"gradeflow/internal/review/github"
	"gradeflow/internal/review/model"
	"gradeflow/internal/review/workspace"
	appErr "gradeflow/pkg/errors"
)

type fakeSubmissions struct {
	mu       sync.Mutex
	byID     map[int64]*model.Submission
	nextID   int64
	recorded []model.Submission
	getErr   error
}

func newFakeSubmissions(subs ...*model.Submission) *fakeSubmissions {
	f := &fakeSubmissions{byID: map[int64]*model.Submission{}, nextID: 100}
	for _, s := range subs {
		f.byID[s.ID] = s
	}
	return f
}

func (f *fakeSubmissions) Create(_ context.Context, s *model.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.AssignmentID == s.AssignmentID && existing.ChangeRef == s.ChangeRef {
			return appErr.New(appErr.SubmissionDuplicate)
		}
	}
	f.nextID++
	s.ID = f.nextID
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSubmissions) GetByID(_ context.Context, id int64) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.byID[id]
	if !ok {
		return nil, appErr.New(appErr.SubmissionNotFound)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSubmissions) GetByChangeRef(_ context.Context, assignmentID int64, ref string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.byID {
		if s.AssignmentID == assignmentID && s.ChangeRef == ref {
			cp := *s
			return &cp, nil
		}
	}
	return nil, appErr.New(appErr.SubmissionNotFound)
}

func (f *fakeSubmissions) RecordReview(_ context.Context, id int64, grade int, merged bool, description string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, model.Submission{ID: id, Grade: grade, Merged: merged, Description: description})
	return nil
}

type fakeAssignments struct {
	byID map[int64]*model.Assignment
}

func (f *fakeAssignments) GetByID(_ context.Context, id int64) (*model.Assignment, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, appErr.New(appErr.AssignmentNotFound)
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssignments) FindByCodes(_ context.Context, tokens []string) (*model.Assignment, error) {
	for _, tok := range tokens {
		for _, a := range f.byID {
			if a.Code == tok {
				cp := *a
				return &cp, nil
			}
		}
	}
	return nil, nil
}

type fakeStudents map[string]*model.Student

func (f fakeStudents) FindByGitHub(_ context.Context, login string) (*model.Student, error) {
	return f[login], nil
}

type fakeProvider struct {
	mu          sync.Mutex
	comments    []string
	merges      int
	closed      int
	merged      bool
	mergeable   bool
	mergeResult bool
	mergeErr    error
	files       []string
	patch       []byte
	commentErr  error
}

func (f *fakeProvider) ChangedFiles(context.Context, string) ([]string, error) {
	return f.files, nil
}

func (f *fakeProvider) Patch(context.Context, string) ([]byte, error) {
	return f.patch, nil
}

func (f *fakeProvider) Comment(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments = append(f.comments, text)
	return nil
}

func (f *fakeProvider) Merge(context.Context, string, string, bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merges++
	return f.mergeResult, f.mergeErr
}

func (f *fakeProvider) IsMerged(context.Context, string) (bool, error) {
	return f.merged, nil
}

func (f *fakeProvider) IsMergeable(context.Context, string) (bool, error) {
	return f.mergeable, nil
}

func (f *fakeProvider) Close(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeProvider) Comments() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments...)
}

type fakePulls []github.PullRequest

func (f fakePulls) ListOpenPulls(context.Context) ([]github.PullRequest, error) {
	return f, nil
}

// fakeWorkspaces records the lifecycle of every tree it hands out.
type fakeWorkspaces struct {
	mu         sync.Mutex
	applyErr   error
	openErr    error
	discardErr error
	opened     int
	discarded  int
	applied    [][]byte
}

func (f *fakeWorkspaces) WithWorkspace(ctx context.Context, author string, id int64, fn func(context.Context, *workspace.Tree) error) (err error) {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	if f.openErr != nil {
		return f.openErr
	}
	defer func() {
		f.mu.Lock()
		f.discarded++
		f.mu.Unlock()
		if f.discardErr != nil {
			err = errors.Join(err, f.discardErr)
		}
	}()
	return fn(ctx, &workspace.Tree{Dir: "/work/" + author, Branch: model.ReviewBranch(id), Author: author, SubmissionID: id})
}

func (f *fakeWorkspaces) Apply(_ context.Context, _ *workspace.Tree, patch []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, patch)
	return f.applyErr
}

// fakeEvaluator passes every test case of the tasks listed in pass and
// fails the rest.
type fakeEvaluator struct {
	mu    sync.Mutex
	pass  map[int]bool
	files []string
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _, file string, task model.Task) model.TaskResult {
	f.mu.Lock()
	f.files = append(f.files, file)
	f.mu.Unlock()
	res := model.TaskResult{Task: task, Status: model.TaskSubmitted, File: file, Compiled: true}
	for i := range task.TestCases {
		outcome := model.OutcomeMismatch
		if f.pass[task.Number] {
			outcome = model.OutcomePass
		}
		res.Tests = append(res.Tests, model.TestResult{Index: i, Outcome: outcome})
	}
	return res
}

type fakeGrades struct {
	err   error
	calls int
}

func (f *fakeGrades) Sync(_ context.Context, _ model.Student, _ model.Assignment, results []model.TaskResult) ([]int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]int, len(results))
	for i, r := range results {
		out[i] = r.Points
	}
	return out, nil
}

type memoryStatus struct {
	mu    sync.Mutex
	saved []model.ReviewStatus
}

func (m *memoryStatus) Save(_ context.Context, s model.ReviewStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, s)
	return nil
}

type fakePublisher struct {
	final []model.ReviewStatus
}

func (f *fakePublisher) PublishFinalStatus(_ context.Context, s model.ReviewStatus) error {
	f.final = append(f.final, s)
	return nil
}

type memoryArtifacts struct {
	saved map[string]map[string][]byte
}

func (m *memoryArtifacts) Save(_ context.Context, id int64, jobID string, files map[string][]byte) (string, error) {
	if m.saved == nil {
		m.saved = map[string]map[string][]byte{}
	}
	m.saved[jobID] = files
	return jobID, nil
}

func (m *memoryArtifacts) Load(_ context.Context, _ int64, jobID string) (map[string][]byte, error) {
	return m.saved[jobID], nil
}

type fakeDispatcher struct {
	jobs []model.ReviewJob
	err  error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, job model.ReviewJob) (model.ReviewJob, error) {
	if f.err != nil {
		return job, f.err
	}
	if job.JobID == "" {
		job.JobID = "job-1"
	}
	f.jobs = append(f.jobs, job)
	return job, nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages map[string][]*mq.Message
}

func (f *fakeProducer) Publish(_ context.Context, topic string, msg *mq.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = map[string][]*mq.Message{}
	}
	f.messages[topic] = append(f.messages[topic], msg)
	return nil
}
