// Package runner executes external commands under a wall-clock limit and
// captures their output. It backs both the version-control tool and the
// compile/test steps of a review.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultMaxOutputBytes int64 = 64 * 1024

// Limits are resource caps applied through the guard helper.
type Limits struct {
	CPUSeconds     int    `yaml:"cpuSeconds"`
	AddressSpaceMB int    `yaml:"addressSpaceMB"`
	FileSizeMB     int    `yaml:"fileSizeMB"`
	Processes      int    `yaml:"processes"`
	SeccompProfile string `yaml:"seccompProfile"`
}

// Spec describes one command invocation.
type Spec struct {
	Args    []string
	Dir     string
	Env     []string
	Stdin   string
	Timeout time.Duration
	// CombinedOutput interleaves stderr into Stdout.
	CombinedOutput bool
	// Limits, when set and a guard is configured, wraps Args with the guard.
	Limits *Limits
}

// Result is the observed outcome of a command that was started.
type Result struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	TimedOut  bool
	Truncated bool
	Duration  time.Duration
}

// Config configures a Runner.
type Config struct {
	// GuardPath is the run-guard binary; empty disables guarded runs.
	GuardPath      string `yaml:"guardPath"`
	MaxOutputBytes int64  `yaml:"maxOutputBytes"`
}

// Runner starts commands in their own process group so a timeout kills the
// whole tree.
type Runner struct {
	cfg Config
}

func New(cfg Config) *Runner {
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	return &Runner{cfg: cfg}
}

// ErrEmptyCommand is returned for a Spec without arguments.
var ErrEmptyCommand = errors.New("command is empty")

// Run executes spec. The returned error is non-nil only when the command
// could not be started; timeouts and non-zero exits are reported in Result.
func (r *Runner) Run(ctx context.Context, spec Spec) (Result, error) {
	args := r.wrap(spec)
	if len(args) == 0 {
		return Result{}, ErrEmptyCommand
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.Stdin = strings.NewReader(spec.Stdin)
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = time.Second

	stdout := newLimitedBuffer(r.cfg.MaxOutputBytes)
	cmd.Stdout = stdout
	stderr := stdout
	if !spec.CombinedOutput {
		stderr = newLimitedBuffer(r.cfg.MaxOutputBytes)
	}
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start %s: %w", args[0], err)
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if spec.Timeout > 0 {
			timer := time.NewTimer(spec.Timeout)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := Result{
		Stdout:    stdout.String(),
		ExitCode:  exitCodeFromErr(waitErr, cmd.ProcessState),
		TimedOut:  timedOut.Load(),
		Truncated: stdout.Truncated(),
		Duration:  time.Since(start),
	}
	if !spec.CombinedOutput {
		res.Stderr = stderr.String()
		res.Truncated = res.Truncated || stderr.Truncated()
	}
	if (res.TimedOut || ctx.Err() != nil) && res.ExitCode == 0 {
		res.ExitCode = -1
	}
	return res, nil
}

func (r *Runner) wrap(spec Spec) []string {
	if spec.Limits == nil || r.cfg.GuardPath == "" || len(spec.Args) == 0 {
		return spec.Args
	}
	l := spec.Limits
	args := []string{r.cfg.GuardPath}
	if l.CPUSeconds > 0 {
		args = append(args, "-cpu", strconv.Itoa(l.CPUSeconds))
	}
	if l.AddressSpaceMB > 0 {
		args = append(args, "-as", strconv.Itoa(l.AddressSpaceMB))
	}
	if l.FileSizeMB > 0 {
		args = append(args, "-fsize", strconv.Itoa(l.FileSizeMB))
	}
	if l.Processes > 0 {
		args = append(args, "-nproc", strconv.Itoa(l.Processes))
	}
	if l.SeccompProfile != "" {
		args = append(args, "-seccomp", l.SeccompProfile)
	}
	args = append(args, "--")
	return append(args, spec.Args...)
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// limitedBuffer keeps the first max bytes and discards the rest while still
// reporting full writes, so the child never blocks on a full pipe.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int64
	truncated bool
}

func newLimitedBuffer(max int64) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.max - int64(b.buf.Len())
	if remaining <= 0 {
		b.truncated = b.truncated || len(p) > 0
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		b.buf.Write(p[:remaining])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
