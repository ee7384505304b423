// Package evaluate compiles a submitted source file and runs it against the
// test cases of its task.
package evaluate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gradeflow/internal/review/model"
	"gradeflow/internal/review/runner"
	pkgerrors "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	DefaultCompileCommand = "gcc -Wall -std={std} -pedantic {src} -o {bin} -lm"
	defaultStd            = "c11"
	defaultCompileTimeout = 30 * time.Second
	binaryName            = "solution"
)

// Config controls compilation and test execution.
type Config struct {
	// CompileCommand is split like a shell line; {src}, {bin} and {std} are
	// substituted per field.
	CompileCommand string        `yaml:"compileCommand"`
	Std            string        `yaml:"std"`
	CompileTimeout time.Duration `yaml:"compileTimeout"`
	TestTimeout    time.Duration `yaml:"testTimeout"`
	// BuildDir holds the per-evaluation binaries; empty uses the system temp dir.
	BuildDir string        `yaml:"buildDir"`
	Limits   runner.Limits `yaml:"limits"`
}

// Engine evaluates task files.
type Engine struct {
	run     *runner.Runner
	cfg     Config
	command []string
}

// NewEngine validates the compile template and returns an engine.
func NewEngine(r *runner.Runner, cfg Config) (*Engine, error) {
	if cfg.CompileCommand == "" {
		cfg.CompileCommand = DefaultCompileCommand
	}
	if cfg.Std == "" {
		cfg.Std = defaultStd
	}
	if cfg.CompileTimeout <= 0 {
		cfg.CompileTimeout = defaultCompileTimeout
	}
	if cfg.TestTimeout <= 0 {
		cfg.TestTimeout = model.DefaultTestTimeout
	}
	fields, err := shlex.Split(cfg.CompileCommand)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.InvalidParams, "parse compile command failed")
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("compile command is empty")
	}
	return &Engine{run: r, cfg: cfg, command: fields}, nil
}

// Unsubmitted is the result of a task no file was provided for.
func Unsubmitted(task model.Task) model.TaskResult {
	return model.TaskResult{Task: task, Status: model.TaskUnsubmitted}
}

// Evaluate compiles file (relative to repoDir) and runs it on every test
// case of task. Failures are recorded in the result, never returned.
func (e *Engine) Evaluate(ctx context.Context, repoDir, file string, task model.Task) model.TaskResult {
	res := model.TaskResult{Task: task, Status: model.TaskSubmitted, File: file}

	buildDir, err := os.MkdirTemp(e.cfg.BuildDir, "build-*")
	if err != nil {
		res.Diagnostics = fmt.Sprintf("cannot create build directory: %v", err)
		return res
	}
	defer os.RemoveAll(buildDir)
	binary := filepath.Join(buildDir, binaryName)

	if !e.compile(ctx, repoDir, file, binary, &res) {
		return res
	}
	for i, tc := range task.TestCases {
		res.Tests = append(res.Tests, e.runCase(ctx, buildDir, binary, i+1, tc))
	}
	logger.Debug(ctx, "task evaluated",
		zap.Int("task", task.Number), zap.Int("passed", res.Passed()), zap.Int("total", len(task.TestCases)))
	return res
}

func (e *Engine) compile(ctx context.Context, repoDir, file, binary string, res *model.TaskResult) bool {
	src := filepath.Join(repoDir, filepath.FromSlash(file))
	args := make([]string, len(e.command))
	for i, field := range e.command {
		field = strings.ReplaceAll(field, "{src}", src)
		field = strings.ReplaceAll(field, "{bin}", binary)
		args[i] = strings.ReplaceAll(field, "{std}", e.cfg.Std)
	}

	out, err := e.run.Run(ctx, runner.Spec{
		Args:           args,
		Dir:            repoDir,
		Timeout:        e.cfg.CompileTimeout,
		CombinedOutput: true,
	})
	if err != nil {
		logger.Warn(ctx, "compiler launch failed", zap.String("file", file), zap.Error(err))
		res.Diagnostics = err.Error()
		return false
	}
	res.Diagnostics = stripPaths(out.Stdout, repoDir)
	if out.TimedOut {
		res.Diagnostics = strings.TrimSpace(res.Diagnostics + "\ncompilation timed out")
		return false
	}
	if out.ExitCode != 0 {
		return false
	}
	res.Compiled = true
	res.Warnings = strings.TrimSpace(res.Diagnostics) != ""
	return true
}

func (e *Engine) runCase(ctx context.Context, buildDir, binary string, index int, tc model.TestCase) model.TestResult {
	tr := model.TestResult{Index: index, Input: tc.Input, Expected: tc.Output}
	timeout := tc.Timeout
	if timeout <= 0 {
		timeout = e.cfg.TestTimeout
	}
	spec := runner.Spec{
		Args:    []string{binary},
		Dir:     buildDir,
		Stdin:   tc.Input,
		Timeout: timeout,
	}
	if e.cfg.Limits != (runner.Limits{}) {
		limits := e.cfg.Limits
		spec.Limits = &limits
	}

	out, err := e.run.Run(ctx, spec)
	if err != nil {
		tr.Outcome = model.OutcomeOther
		tr.ExitCode = -1
		tr.Detail = err.Error()
		return tr
	}
	tr.ExitCode = out.ExitCode
	tr.TimedOut = out.TimedOut
	tr.Actual = out.Stdout
	switch {
	case out.TimedOut:
		tr.Outcome = model.OutcomeTimeout
		tr.Detail = fmt.Sprintf("killed after %s", timeout)
	case out.ExitCode != 0:
		tr.Outcome = model.OutcomeTimeout
		tr.Detail = fmt.Sprintf("exited with code %d", out.ExitCode)
	case Normalize(out.Stdout) == Normalize(tc.Output):
		tr.Outcome = model.OutcomePass
	default:
		tr.Outcome = model.OutcomeMismatch
	}
	return tr
}

// stripPaths removes the checkout location from compiler output so messages
// show repository-relative paths.
func stripPaths(text, repoDir string) string {
	if repoDir == "" {
		return text
	}
	dir := filepath.Clean(repoDir) + string(filepath.Separator)
	return strings.ReplaceAll(text, dir, "")
}
