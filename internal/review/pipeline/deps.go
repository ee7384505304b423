package pipeline

import (
	"context"

	"gradeflow/internal/review/github"
	"gradeflow/internal/review/model"
	"gradeflow/internal/review/workspace"
)

// ChangeProvider is the code-review host the change-requests live on.
type ChangeProvider interface {
	ChangedFiles(ctx context.Context, ref string) ([]string, error)
	Patch(ctx context.Context, ref string) ([]byte, error)
	Comment(ctx context.Context, ref, text string) error
	Merge(ctx context.Context, ref, message string, squash bool) (bool, error)
	IsMerged(ctx context.Context, ref string) (bool, error)
	IsMergeable(ctx context.Context, ref string) (bool, error)
	Close(ctx context.Context, ref string) error
}

// PullLister lists the open change-requests for bulk intake.
type PullLister interface {
	ListOpenPulls(ctx context.Context) ([]github.PullRequest, error)
}

// Workspaces prepares isolated checkouts.
type Workspaces interface {
	WithWorkspace(ctx context.Context, author string, submissionID int64, fn func(ctx context.Context, tree *workspace.Tree) error) error
	Apply(ctx context.Context, tree *workspace.Tree, patch []byte) error
}

// Evaluator compiles and tests one task file.
type Evaluator interface {
	Evaluate(ctx context.Context, repoDir, file string, task model.Task) model.TaskResult
}

// GradeSyncer reconciles earned points with the gradebook.
type GradeSyncer interface {
	Sync(ctx context.Context, student model.Student, assignment model.Assignment, results []model.TaskResult) ([]int, error)
}

// StudentFinder resolves authors; an unknown author is (nil, nil).
type StudentFinder interface {
	FindByGitHub(ctx context.Context, login string) (*model.Student, error)
}

// StatusStore keeps the latest review status.
type StatusStore interface {
	Save(ctx context.Context, status model.ReviewStatus) error
}
