package model

// Outcome classifies one test-case run.
type Outcome string

const (
	OutcomePass     Outcome = "PASS"
	OutcomeMismatch Outcome = "MISMATCH"
	// OutcomeTimeout also covers a non-zero exit of the program.
	OutcomeTimeout Outcome = "TIMEOUT"
	OutcomeOther   Outcome = "OTHER"
)

// TaskStatus tells whether a file for the task was part of the change-set.
type TaskStatus string

const (
	TaskSubmitted   TaskStatus = "SUBMITTED"
	TaskUnsubmitted TaskStatus = "UNSUBMITTED"
)

// TestResult is the record of one test-case run.
type TestResult struct {
	Index    int     `json:"index"`
	Outcome  Outcome `json:"outcome"`
	Input    string  `json:"input,omitempty"`
	Expected string  `json:"expected,omitempty"`
	Actual   string  `json:"actual,omitempty"`
	ExitCode int     `json:"exit_code"`
	TimedOut bool    `json:"timed_out"`
	Detail   string  `json:"detail,omitempty"`
}

// TaskResult is the evaluation of one task of a submission.
type TaskResult struct {
	Task        Task         `json:"task"`
	Status      TaskStatus   `json:"status"`
	File        string       `json:"file,omitempty"`
	Compiled    bool         `json:"compiled"`
	Warnings    bool         `json:"warnings"`
	Diagnostics string       `json:"diagnostics,omitempty"`
	Tests       []TestResult `json:"tests,omitempty"`
	Points      int          `json:"points"`
}

// Passed counts passing test cases.
func (r TaskResult) Passed() int {
	n := 0
	for _, t := range r.Tests {
		if t.Outcome == OutcomePass {
			n++
		}
	}
	return n
}

// FileIssue is a changed file that was not graded, with the reason.
type FileIssue struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ReviewResult aggregates everything the report needs.
type ReviewResult struct {
	Tasks  []TaskResult `json:"tasks"`
	Issues []FileIssue  `json:"issues"`
	Earned int          `json:"earned"`
	Max    int          `json:"max"`
}
