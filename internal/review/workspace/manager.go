// Package workspace owns the per-author working copies of the course
// repository and the short-lived review branches created in them.
package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gradeflow/internal/common/lock"
	"gradeflow/internal/review/model"
	pkgerrors "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/logger"

	"go.uber.org/zap"
)

const cleanupTimeout = 2 * time.Minute

// Config locates the repository and the directory tree holding checkouts.
type Config struct {
	Root          string `yaml:"root"`
	RepoURL       string `yaml:"repoURL"`
	DefaultBranch string `yaml:"defaultBranch"`
	Remote        string `yaml:"remote"`
	// PatchDir receives patch files; it must not be inside Root.
	PatchDir string `yaml:"patchDir"`
}

// Tree is a checkout positioned on a review branch.
type Tree struct {
	Dir           string
	Branch        string
	Author        string
	SubmissionID  int64
	// BranchCreated is false when Open failed before creating Branch.
	BranchCreated bool
}

// Manager prepares and discards review trees. At most one tree per author is
// active at a time.
type Manager struct {
	vcs    VCS
	locker *lock.KeyedLocker
	cfg    Config
}

func NewManager(vcs VCS, locker *lock.KeyedLocker, cfg Config) *Manager {
	if cfg.DefaultBranch == "" {
		cfg.DefaultBranch = "master"
	}
	if cfg.Remote == "" {
		cfg.Remote = "origin"
	}
	if locker == nil {
		locker = lock.NewKeyedLocker(nil, lock.Config{})
	}
	return &Manager{vcs: vcs, locker: locker, cfg: cfg}
}

// AuthorKey maps an author login to the directory name of its checkout.
func AuthorKey(author string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(author) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// Dir is the checkout directory of author.
func (m *Manager) Dir(author string) string {
	return filepath.Join(m.cfg.Root, AuthorKey(author))
}

// WithWorkspace holds the author's workspace for the duration of fn. The tree
// is opened on a fresh review branch and discarded after fn returns, on every
// path. The returned error joins the failure of fn with any cleanup failure.
func (m *Manager) WithWorkspace(ctx context.Context, author string, submissionID int64, fn func(ctx context.Context, tree *Tree) error) error {
	return m.locker.WithLock(ctx, "workspace:"+AuthorKey(author), func(ctx context.Context) (err error) {
		tree, openErr := m.Open(ctx, author, submissionID)
		if tree == nil {
			return openErr
		}
		defer func() {
			if discardErr := m.Discard(ctx, tree); discardErr != nil {
				err = errors.Join(err, discardErr)
			}
		}()
		if openErr != nil {
			return openErr
		}
		return fn(ctx, tree)
	})
}

// Open clones the repository for author when absent, syncs the default
// branch and creates the review branch. A non-nil tree is returned whenever
// the checkout exists, even on error, so the caller can discard it.
func (m *Manager) Open(ctx context.Context, author string, submissionID int64) (*Tree, error) {
	dir := m.Dir(author)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, pkgerrors.Wrapf(err, pkgerrors.VCSOperationFailed, "stat workspace %s", dir)
		}
		if err := os.MkdirAll(m.cfg.Root, 0o755); err != nil {
			return nil, pkgerrors.Wrapf(err, pkgerrors.VCSOperationFailed, "create workspace root")
		}
		logger.Info(ctx, "cloning workspace", zap.String("author", author), zap.String("dir", dir))
		if err := m.vcs.Clone(ctx, m.cfg.RepoURL, dir); err != nil {
			_ = os.RemoveAll(dir)
			return nil, err
		}
	}

	tree := &Tree{
		Dir:          dir,
		Branch:       model.ReviewBranch(submissionID),
		Author:       author,
		SubmissionID: submissionID,
	}
	if err := m.vcs.Checkout(ctx, dir, m.cfg.DefaultBranch, false); err != nil {
		return tree, err
	}
	if err := m.vcs.Pull(ctx, dir, m.cfg.Remote, m.cfg.DefaultBranch); err != nil {
		return tree, err
	}
	// A branch left behind by an interrupted run would make the create fail.
	_ = m.vcs.DeleteBranch(ctx, dir, tree.Branch, true)
	if err := m.vcs.Checkout(ctx, dir, tree.Branch, true); err != nil {
		return tree, err
	}
	tree.BranchCreated = true
	return tree, nil
}

// Apply applies patch onto the tree ignoring whitespace differences. A failed
// apply is followed by an explicit abort so the tree holds no partial hunks.
func (m *Manager) Apply(ctx context.Context, tree *Tree, patch []byte) error {
	f, err := os.CreateTemp(m.cfg.PatchDir, "gradeflow-*.patch")
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.PatchApplyFailed, "create patch file")
	}
	name := f.Name()
	defer os.Remove(name)
	if _, err := f.Write(patch); err != nil {
		_ = f.Close()
		return pkgerrors.Wrapf(err, pkgerrors.PatchApplyFailed, "write patch file")
	}
	if err := f.Close(); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.PatchApplyFailed, "write patch file")
	}

	applyErr := m.vcs.ApplyPatch(ctx, tree.Dir, name, true)
	if applyErr == nil {
		return nil
	}
	if abortErr := m.vcs.AbortApply(ctx, tree.Dir); abortErr != nil {
		logger.Warn(ctx, "abort apply failed", zap.String("dir", tree.Dir), zap.Error(abortErr))
	}
	wrapped := pkgerrors.Wrapf(applyErr, pkgerrors.PatchApplyFailed, "patch does not apply")
	if e := pkgerrors.GetError(applyErr); e != nil {
		wrapped.WithDetails(e.Details)
	}
	return wrapped
}

// Discard returns the tree to the default branch, drops local modifications
// and untracked files, and deletes the review branch if Open created it.
// Every step is attempted even after an earlier one fails, and a cancelled
// ctx does not stop it.
func (m *Manager) Discard(ctx context.Context, tree *Tree) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	errs := []error{
		m.vcs.Checkout(ctx, tree.Dir, m.cfg.DefaultBranch, false),
		m.vcs.CheckoutPaths(ctx, tree.Dir, "."),
		m.vcs.Clean(ctx, tree.Dir, true, true),
	}
	if tree.BranchCreated {
		errs = append(errs, m.vcs.DeleteBranch(ctx, tree.Dir, tree.Branch, true))
	}
	err := errors.Join(errs...)
	if err != nil {
		logger.Error(ctx, "workspace cleanup incomplete",
			zap.String("dir", tree.Dir), zap.String("branch", tree.Branch), zap.Error(err))
		return pkgerrors.Wrapf(err, pkgerrors.WorkspaceCleanup, "cleanup of %s incomplete", tree.Dir)
	}
	return nil
}
