//go:build unix

package evaluate_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gradeflow/internal/review/evaluate"
	"gradeflow/internal/review/model"
	"gradeflow/internal/review/runner"
)

// copyCompiler "compiles" a shell script by copying it to the binary path.
const copyCompiler = "cp {src} {bin}"

func writeSource(t *testing.T, repo, rel, content string) {
	t.Helper()
	full := filepath.Join(repo, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o755); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func newEngine(t *testing.T, cfg evaluate.Config) *evaluate.Engine {
	t.Helper()
	cfg.BuildDir = t.TempDir()
	e, err := evaluate.NewEngine(runner.New(runner.Config{}), cfg)
	if err != nil {
		t.Fatalf("new engine failed: %v", err)
	}
	return e
}

func TestEvaluateClassifiesOutcomes(t *testing.T) {
	t.Parallel()
	repo := t.TempDir()
	writeSource(t, repo, "B/07/12/01_echo.sh", `#!/bin/sh
read x
case "$x" in
  loop) while :; do :; done ;;
  fail) exit 3 ;;
  *) printf '  %s  \n\n' "$x" ;;
esac
`)
	e := newEngine(t, evaluate.Config{CompileCommand: copyCompiler, TestTimeout: 200 * time.Millisecond})
	task := model.Task{Number: 1, Points: 4, TestCases: []model.TestCase{
		{Input: "hello\n", Output: "hello"},
		{Input: "hello\n", Output: "bye"},
		{Input: "loop\n", Output: ""},
		{Input: "fail\n", Output: ""},
	}}

	res := e.Evaluate(context.Background(), repo, "B/07/12/01_echo.sh", task)
	if !res.Compiled || res.Warnings {
		t.Fatalf("expected clean compile, got compiled=%v warnings=%v diag=%q", res.Compiled, res.Warnings, res.Diagnostics)
	}
	want := []model.Outcome{model.OutcomePass, model.OutcomeMismatch, model.OutcomeTimeout, model.OutcomeTimeout}
	if len(res.Tests) != len(want) {
		t.Fatalf("expected %d test results, got %d", len(want), len(res.Tests))
	}
	for i, w := range want {
		if res.Tests[i].Outcome != w {
			t.Errorf("case %d: outcome %s, want %s (%s)", i+1, res.Tests[i].Outcome, w, res.Tests[i].Detail)
		}
	}
	if !res.Tests[2].TimedOut {
		t.Errorf("loop case should be marked timed out")
	}
	if res.Tests[3].ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", res.Tests[3].ExitCode)
	}
	if res.Tests[1].Expected != "bye" || !strings.Contains(res.Tests[1].Actual, "hello") {
		t.Errorf("mismatch should retain expected and actual output: %+v", res.Tests[1])
	}
	if res.Passed() != 1 {
		t.Errorf("expected 1 passed case, got %d", res.Passed())
	}
}

func TestEvaluateCompileFailureStripsRepoPath(t *testing.T) {
	t.Parallel()
	repo := t.TempDir()
	writeSource(t, repo, "B/07/12/02_bad.c", "int main(void) {")
	e := newEngine(t, evaluate.Config{CompileCommand: `sh -c 'echo "$0:1: error: expected }" >&2; exit 1' {src}`})

	res := e.Evaluate(context.Background(), repo, "B/07/12/02_bad.c", model.Task{Number: 2, Points: 3,
		TestCases: []model.TestCase{{Input: "", Output: ""}}})
	if res.Compiled {
		t.Fatalf("expected compile failure")
	}
	if len(res.Tests) != 0 {
		t.Fatalf("tests must not run after a failed compile")
	}
	if strings.Contains(res.Diagnostics, repo) {
		t.Fatalf("diagnostics leak checkout path: %q", res.Diagnostics)
	}
	if !strings.Contains(res.Diagnostics, "B/07/12/02_bad.c:1: error") {
		t.Fatalf("diagnostics lost the relative path: %q", res.Diagnostics)
	}
}

func TestEvaluateCompilerOutputMeansWarnings(t *testing.T) {
	t.Parallel()
	repo := t.TempDir()
	writeSource(t, repo, "B/07/12/03_cat.sh", "#!/bin/sh\ncat\n")
	e := newEngine(t, evaluate.Config{CompileCommand: `sh -c 'cp "$0" "$1" && echo "warning: unused variable"' {src} {bin}`})

	res := e.Evaluate(context.Background(), repo, "B/07/12/03_cat.sh", model.Task{Number: 3, Points: 2,
		TestCases: []model.TestCase{{Input: "1 2\n", Output: "1 2"}}})
	if !res.Compiled || !res.Warnings {
		t.Fatalf("expected compile with warnings, got compiled=%v warnings=%v", res.Compiled, res.Warnings)
	}
	if res.Passed() != 1 {
		t.Fatalf("expected passing case, got %+v", res.Tests)
	}
}

func TestEvaluateLaunchErrorIsOther(t *testing.T) {
	t.Parallel()
	repo := t.TempDir()
	// Not executable: the copied binary cannot be started.
	full := filepath.Join(repo, "B/07/12/04_x.sh")
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(full, []byte("#!/bin/sh\n"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	e := newEngine(t, evaluate.Config{CompileCommand: copyCompiler})

	res := e.Evaluate(context.Background(), repo, "B/07/12/04_x.sh", model.Task{Number: 4, Points: 1,
		TestCases: []model.TestCase{{Output: "a"}, {Output: "b"}}})
	if len(res.Tests) != 2 {
		t.Fatalf("every case should be recorded, got %d", len(res.Tests))
	}
	for _, tr := range res.Tests {
		if tr.Outcome != model.OutcomeOther {
			t.Fatalf("expected OTHER, got %s", tr.Outcome)
		}
	}
}

func TestEvaluateWithGCC(t *testing.T) {
	if _, err := exec.LookPath("gcc"); err != nil {
		t.Skip("gcc not available")
	}
	t.Parallel()
	repo := t.TempDir()
	writeSource(t, repo, "B/07/12/07_sum.c", `#include <stdio.h>
int main(void) {
    int a, b;
    if (scanf("%d %d", &a, &b) != 2) return 1;
    printf("%d\n", a + b);
    return 0;
}
`)
	e := newEngine(t, evaluate.Config{})
	res := e.Evaluate(context.Background(), repo, "B/07/12/07_sum.c", model.Task{Number: 7, Points: 5,
		TestCases: []model.TestCase{{Input: "1 2", Output: "3\n"}, {Input: "2 2", Output: "4"}}})
	if !res.Compiled || res.Warnings {
		t.Fatalf("expected clean compile: %q", res.Diagnostics)
	}
	if res.Passed() != 2 {
		t.Fatalf("expected all cases to pass, got %+v", res.Tests)
	}
}

func TestNewEngineRejectsBadTemplate(t *testing.T) {
	t.Parallel()
	if _, err := evaluate.NewEngine(runner.New(runner.Config{}), evaluate.Config{CompileCommand: `gcc "unterminated`}); err == nil {
		t.Fatalf("expected error for unterminated quote")
	}
}

func TestUnsubmitted(t *testing.T) {
	t.Parallel()
	res := evaluate.Unsubmitted(model.Task{Number: 5, Points: 2})
	if res.Status != model.TaskUnsubmitted || res.Compiled || len(res.Tests) != 0 {
		t.Fatalf("unexpected unsubmitted result: %+v", res)
	}
}
