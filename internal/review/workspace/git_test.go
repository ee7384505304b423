package workspace_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"gradeflow/internal/review/runner"
	"gradeflow/internal/review/workspace"
	pkgerrors "gradeflow/pkg/errors"
)

const addFilePatch = `diff --git a/B/07/12/07_sort.c b/B/07/12/07_sort.c
new file mode 100644
--- /dev/null
+++ b/B/07/12/07_sort.c
@@ -0,0 +1 @@
+int main(void) { return 0; }
`

const editReadmePatch = `diff --git a/README b/README
--- a/README
+++ b/README
@@ -1 +1 @@
-course
+course   repo
`

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
}

func gitCmd(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-c", "user.name=test", "-c", "user.email=test@example.com"}, args...)...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v failed: %v\n%s", args, err, out)
	}
}

func newOrigin(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	gitCmd(t, dir, "init", "--quiet", "-b", "master")
	if err := os.WriteFile(filepath.Join(dir, "README"), []byte("course\n"), 0o644); err != nil {
		t.Fatalf("write readme failed: %v", err)
	}
	gitCmd(t, dir, "add", "README")
	gitCmd(t, dir, "commit", "--quiet", "-m", "init")
	return dir
}

func newGitManager(t *testing.T, origin string) (*workspace.Manager, workspace.VCS) {
	t.Helper()
	vcs := workspace.NewGit(runner.New(runner.Config{}), workspace.GitConfig{})
	m := workspace.NewManager(vcs, nil, workspace.Config{
		Root:     filepath.Join(t.TempDir(), "checkouts"),
		RepoURL:  origin,
		PatchDir: t.TempDir(),
	})
	return m, vcs
}

func TestGitWorkspaceAppliesAndRestoresBaseline(t *testing.T) {
	requireGit(t)
	origin := newOrigin(t)
	m, vcs := newGitManager(t, origin)
	ctx := context.Background()

	err := m.WithWorkspace(ctx, "ana", 1, func(ctx context.Context, tree *workspace.Tree) error {
		branch, err := vcs.CurrentBranch(ctx, tree.Dir)
		if err != nil {
			return err
		}
		if branch != "review#1" {
			t.Errorf("expected review branch, got %s", branch)
		}
		if err := m.Apply(ctx, tree, []byte(addFilePatch+editReadmePatch)); err != nil {
			return err
		}
		if _, err := os.Stat(filepath.Join(tree.Dir, "B/07/12/07_sort.c")); err != nil {
			t.Errorf("patched file missing: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with workspace failed: %v", err)
	}

	dir := m.Dir("ana")
	branch, err := vcs.CurrentBranch(ctx, dir)
	if err != nil || branch != "master" {
		t.Fatalf("expected master after discard, got %q err=%v", branch, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "B")); !os.IsNotExist(err) {
		t.Fatalf("untracked files should be removed, stat err=%v", err)
	}
	readme, _ := os.ReadFile(filepath.Join(dir, "README"))
	if string(readme) != "course\n" {
		t.Fatalf("tracked modification should be reverted, got %q", readme)
	}
}

func TestGitWorkspaceApplyFailure(t *testing.T) {
	requireGit(t)
	origin := newOrigin(t)
	m, vcs := newGitManager(t, origin)
	ctx := context.Background()

	conflicting := `diff --git a/README b/README
--- a/README
+++ b/README
@@ -1 +1 @@
-something else entirely
+patched
`
	err := m.WithWorkspace(ctx, "ana", 2, func(ctx context.Context, tree *workspace.Tree) error {
		return m.Apply(ctx, tree, []byte(conflicting))
	})
	if !pkgerrors.Is(err, pkgerrors.PatchApplyFailed) {
		t.Fatalf("expected PatchApplyFailed, got %v", err)
	}
	branch, _ := vcs.CurrentBranch(ctx, m.Dir("ana"))
	if branch != "master" {
		t.Fatalf("expected master after failed apply, got %s", branch)
	}

	// A second review of the same author starts from the clean baseline.
	if err := m.WithWorkspace(ctx, "ana", 3, func(context.Context, *workspace.Tree) error { return nil }); err != nil {
		t.Fatalf("second review failed: %v", err)
	}
}
