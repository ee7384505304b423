package workspace

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gradeflow/internal/review/runner"
	pkgerrors "gradeflow/pkg/errors"
)

const defaultGitTimeout = 2 * time.Minute

// GitConfig configures the git command line tool.
type GitConfig struct {
	Binary  string        `yaml:"binary"`
	Timeout time.Duration `yaml:"timeout"`
}

// Git implements VCS by invoking the git binary through the runner.
type Git struct {
	run *runner.Runner
	cfg GitConfig
}

func NewGit(r *runner.Runner, cfg GitConfig) *Git {
	if cfg.Binary == "" {
		cfg.Binary = "git"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGitTimeout
	}
	return &Git{run: r, cfg: cfg}
}

func (g *Git) Clone(ctx context.Context, url, dir string) error {
	_, err := g.exec(ctx, "", "clone", "clone", "--quiet", url, dir)
	return err
}

func (g *Git) Pull(ctx context.Context, dir, remote, branch string) error {
	_, err := g.exec(ctx, dir, "pull", "pull", "--quiet", "--ff-only", remote, branch)
	return err
}

func (g *Git) Checkout(ctx context.Context, dir, branch string, create bool) error {
	args := []string{"checkout", "--quiet"}
	if create {
		args = append(args, "-b", branch, "HEAD")
	} else {
		args = append(args, branch)
	}
	_, err := g.exec(ctx, dir, "checkout", args...)
	return err
}

func (g *Git) CheckoutPaths(ctx context.Context, dir string, paths ...string) error {
	if len(paths) == 0 {
		paths = []string{"."}
	}
	args := append([]string{"checkout", "--quiet", "--"}, paths...)
	_, err := g.exec(ctx, dir, "checkout", args...)
	return err
}

func (g *Git) ApplyPatch(ctx context.Context, dir, patchFile string, ignoreWhitespace bool) error {
	args := []string{"apply"}
	if ignoreWhitespace {
		args = append(args, "--ignore-space-change", "--ignore-whitespace")
	}
	args = append(args, patchFile)
	_, err := g.exec(ctx, dir, "apply", args...)
	return err
}

func (g *Git) AbortApply(ctx context.Context, dir string) error {
	_, err := g.exec(ctx, dir, "reset", "reset", "--quiet", "--hard", "HEAD")
	return err
}

func (g *Git) Clean(ctx context.Context, dir string, force, directories bool) error {
	args := []string{"clean", "--quiet"}
	if force {
		args = append(args, "-f")
	}
	if directories {
		args = append(args, "-d")
	}
	_, err := g.exec(ctx, dir, "clean", args...)
	return err
}

func (g *Git) DeleteBranch(ctx context.Context, dir, branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := g.exec(ctx, dir, "branch", "branch", "--quiet", flag, branch)
	return err
}

func (g *Git) CurrentBranch(ctx context.Context, dir string) (string, error) {
	out, err := g.exec(ctx, dir, "rev-parse", "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Git) exec(ctx context.Context, dir, op string, args ...string) (string, error) {
	res, err := g.run.Run(ctx, runner.Spec{
		Args:           append([]string{g.cfg.Binary}, args...),
		Dir:            dir,
		Env:            []string{"GIT_TERMINAL_PROMPT=0", "LC_ALL=C"},
		Timeout:        g.cfg.Timeout,
		CombinedOutput: true,
	})
	if err != nil {
		return "", pkgerrors.VCSError(err, op, "")
	}
	if res.TimedOut {
		return res.Stdout, pkgerrors.VCSError(fmt.Errorf("timed out after %s", g.cfg.Timeout), op, res.Stdout)
	}
	if res.ExitCode != 0 {
		return res.Stdout, pkgerrors.VCSError(fmt.Errorf("exit status %d", res.ExitCode), op, res.Stdout)
	}
	return res.Stdout, nil
}
