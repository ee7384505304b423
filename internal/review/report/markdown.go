// Package report renders review comments and decides on merging.
package report

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"gradeflow/internal/review/model"
)

const maxSnippet = 1500

// Input carries everything shown in a review comment.
type Input struct {
	SubmissionID int64
	Assignment   string
	Result       model.ReviewResult
	// Notes are extra lines shown above the totals, e.g. gradebook status.
	Notes    []string
	Decision Decision
}

// Render builds the Markdown review. Tasks appear in ascending number,
// followed by the rejected files sorted by path and the totals line.
func Render(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Review of submission #%d", in.SubmissionID)
	if in.Assignment != "" {
		fmt.Fprintf(&b, " (%s)", in.Assignment)
	}
	b.WriteString("\n\n")

	tasks := append([]model.TaskResult(nil), in.Result.Tasks...)
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Task.Number < tasks[j].Task.Number })
	for _, t := range tasks {
		renderTask(&b, t)
	}

	if len(in.Result.Issues) > 0 {
		issues := append([]model.FileIssue(nil), in.Result.Issues...)
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })
		b.WriteString("### Files not graded\n\n")
		for _, is := range issues {
			fmt.Fprintf(&b, "- `%s`: %s\n", is.Path, is.Reason)
		}
		b.WriteString("\n")
	}

	for _, n := range in.Notes {
		b.WriteString(n)
		b.WriteString("\n\n")
	}
	if in.Decision.Reason != "" {
		b.WriteString(in.Decision.Reason)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "**Earned %d of %d points.**\n", in.Result.Earned, in.Result.Max)
	return b.String()
}

func renderTask(b *strings.Builder, t model.TaskResult) {
	title := fmt.Sprintf("Task %d", t.Task.Number)
	if t.Task.Title != "" {
		title += ": " + t.Task.Title
	}
	fmt.Fprintf(b, "### %s (%d/%d)\n\n", title, t.Points, t.Task.Points)

	switch {
	case t.Status == model.TaskUnsubmitted:
		b.WriteString("Not submitted.\n\n")
		return
	case !t.Compiled:
		fmt.Fprintf(b, "`%s` does not compile.\n\n", t.File)
		writeBlock(b, t.Diagnostics)
		return
	}

	fmt.Fprintf(b, "`%s`: %d of %d test cases passed.\n\n", t.File, t.Passed(), len(t.Tests))
	if t.Warnings {
		b.WriteString("The compiler reported warnings, one point is taken per passed test case:\n\n")
		writeBlock(b, t.Diagnostics)
	}
	for _, tr := range t.Tests {
		switch tr.Outcome {
		case model.OutcomePass:
			continue
		case model.OutcomeMismatch:
			fmt.Fprintf(b, "- Test %d: wrong answer\n", tr.Index)
			writeLabeled(b, "input", tr.Input)
			writeLabeled(b, "expected", tr.Expected)
			writeLabeled(b, "actual", tr.Actual)
		case model.OutcomeTimeout:
			fmt.Fprintf(b, "- Test %d: %s\n", tr.Index, detailOr(tr.Detail, "time limit exceeded"))
			writeLabeled(b, "input", tr.Input)
		default:
			fmt.Fprintf(b, "- Test %d: could not run (%s)\n", tr.Index, detailOr(tr.Detail, "unknown error"))
		}
	}
	b.WriteString("\n")
}

func writeLabeled(b *strings.Builder, label, text string) {
	fmt.Fprintf(b, "  %s:\n", label)
	b.WriteString("  ```\n")
	for _, line := range strings.Split(strings.TrimRight(truncate(text), "\n"), "\n") {
		b.WriteString("  " + line + "\n")
	}
	b.WriteString("  ```\n")
}

func writeBlock(b *strings.Builder, text string) {
	text = strings.TrimRight(truncate(text), "\n")
	if text == "" {
		return
	}
	b.WriteString("```\n" + text + "\n```\n\n")
}

// truncate keeps at most maxSnippet bytes of s without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxSnippet {
		return s
	}
	cut := maxSnippet
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n..."
}

func detailOr(detail, fallback string) string {
	if detail == "" {
		return fallback
	}
	return detail
}
