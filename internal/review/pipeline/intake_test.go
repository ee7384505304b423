package pipeline_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"gradeflow/internal/review/github"
	"gradeflow/internal/review/model"
	"gradeflow/internal/review/pipeline"
	appErr "gradeflow/pkg/errors"
)

func newIntake(t *testing.T, subs *fakeSubmissions, dispatcher *fakeDispatcher, pulls pipeline.PullLister) *pipeline.Intake {
	t.Helper()
	intake, err := pipeline.NewIntake(pipeline.IntakeConfig{
		Assignments: &fakeAssignments{byID: map[int64]*model.Assignment{
			7: {ID: 7, Number: 7, Code: "hw7-b"},
			8: {ID: 8, Number: 8, Code: "hw8-b"},
		}},
		Submissions: subs,
		Dispatcher:  dispatcher,
		Pulls:       pulls,
		Now:         func() time.Time { return time.Unix(1700000000, 0) },
	})
	if err != nil {
		t.Fatalf("new intake: %v", err)
	}
	return intake
}

func pull(n int, body string) github.PullRequest {
	return github.PullRequest{
		Number:  n,
		HTMLURL: fmt.Sprintf("https://github.com/course/repo/pull/%d", n),
		State:   "open",
		Body:    body,
		User:    github.User{Login: "octo", ID: 5},
	}
}

func TestIntakeOutcomes(t *testing.T) {
	subs := newFakeSubmissions()
	dispatcher := &fakeDispatcher{}
	intake := newIntake(t, subs, dispatcher, nil)
	ctx := context.Background()

	res, err := intake.HandlePullRequest(ctx, pull(1, "Solutions for\nhw8-b and hw7-b"))
	if err != nil {
		t.Fatalf("intake failed: %v", err)
	}
	if res.Outcome != pipeline.IntakeCreated || res.SubmissionID == 0 || res.JobID == "" {
		t.Fatalf("unexpected result %+v", res)
	}
	created, _ := subs.GetByID(ctx, res.SubmissionID)
	if created.AssignmentID != 8 {
		t.Fatalf("the earliest code must select the assignment, got %d", created.AssignmentID)
	}
	if created.Author != "octo" || created.AuthorID != 5 || created.Description == "" {
		t.Fatalf("unexpected submission %+v", created)
	}

	again, err := intake.HandlePullRequest(ctx, pull(1, "hw8-b"))
	if err != nil {
		t.Fatalf("duplicate intake failed: %v", err)
	}
	if again.Outcome != pipeline.IntakeDuplicate || again.SubmissionID != res.SubmissionID {
		t.Fatalf("unexpected duplicate result %+v", again)
	}
	if len(dispatcher.jobs) != 1 {
		t.Fatalf("a duplicate must not be dispatched again, jobs = %d", len(dispatcher.jobs))
	}

	rejected, err := intake.HandlePullRequest(ctx, pull(2, "no code here"))
	if err != nil {
		t.Fatalf("rejected intake failed: %v", err)
	}
	if rejected.Outcome != pipeline.IntakeRejected || rejected.Reason == "" {
		t.Fatalf("unexpected result %+v", rejected)
	}
}

func TestIntakeHandleEventIgnoresClosedChanges(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	intake := newIntake(t, newFakeSubmissions(), dispatcher, nil)

	res, err := intake.HandleEvent(context.Background(), github.PullRequestEvent{Action: "closed", PullRequest: pull(1, "hw7-b")})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if res.Outcome != pipeline.IntakeRejected || len(dispatcher.jobs) != 0 {
		t.Fatalf("closed change must be rejected, got %+v", res)
	}
}

func TestIntakeHandleEventReviewsPushedDuplicate(t *testing.T) {
	subs := newFakeSubmissions()
	dispatcher := &fakeDispatcher{}
	intake := newIntake(t, subs, dispatcher, nil)
	ctx := context.Background()

	first, err := intake.HandleEvent(ctx, github.PullRequestEvent{Action: "opened", PullRequest: pull(4, "hw7-b")})
	if err != nil || first.Outcome != pipeline.IntakeCreated {
		t.Fatalf("opened: %+v, %v", first, err)
	}

	tests := []struct {
		action string
		jobs   int
	}{
		{"edited", 1},
		{"synchronize", 2},
		{"reopened", 3},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			res, err := intake.HandleEvent(ctx, github.PullRequestEvent{Action: tt.action, PullRequest: pull(4, "hw7-b")})
			if err != nil {
				t.Fatalf("handle event: %v", err)
			}
			if res.Outcome != pipeline.IntakeDuplicate || res.SubmissionID != first.SubmissionID {
				t.Fatalf("unexpected result %+v", res)
			}
			if len(dispatcher.jobs) != tt.jobs {
				t.Fatalf("jobs = %d, want %d", len(dispatcher.jobs), tt.jobs)
			}
			last := dispatcher.jobs[len(dispatcher.jobs)-1]
			if last.SubmissionID != first.SubmissionID {
				t.Fatalf("job for submission %d, want %d", last.SubmissionID, first.SubmissionID)
			}
		})
	}

	subs.byID[first.SubmissionID].Merged = true
	res, err := intake.HandleEvent(ctx, github.PullRequestEvent{Action: "synchronize", PullRequest: pull(4, "hw7-b")})
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if res.Outcome != pipeline.IntakeDuplicate || res.JobID != "" || len(dispatcher.jobs) != 3 {
		t.Fatalf("a merged submission must not be reviewed again, got %+v with %d jobs", res, len(dispatcher.jobs))
	}
}

func TestIntakeImportOpen(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	pulls := fakePulls{pull(1, "hw7-b"), pull(2, "nothing"), pull(3, "hw8-b")}
	intake := newIntake(t, newFakeSubmissions(), dispatcher, pulls)

	results, err := intake.ImportOpen(context.Background())
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	want := []pipeline.IntakeOutcome{pipeline.IntakeCreated, pipeline.IntakeRejected, pipeline.IntakeCreated}
	for i, r := range results {
		if r.Outcome != want[i] {
			t.Fatalf("result %d = %s, want %s", i, r.Outcome, want[i])
		}
	}
	if len(dispatcher.jobs) != 2 {
		t.Fatalf("expected 2 dispatched jobs, got %d", len(dispatcher.jobs))
	}
}

func TestIntakeRerun(t *testing.T) {
	subs := newFakeSubmissions(&model.Submission{ID: 42, AssignmentID: 7})
	dispatcher := &fakeDispatcher{}
	intake := newIntake(t, subs, dispatcher, nil)

	job, err := intake.Rerun(context.Background(), 42, true, "teacher")
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if !job.Force || job.RequestedBy != "teacher" || job.SubmissionID != 42 || job.EnqueuedAt == 0 {
		t.Fatalf("unexpected job %+v", job)
	}

	if _, err := intake.Rerun(context.Background(), 9, false, ""); !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
