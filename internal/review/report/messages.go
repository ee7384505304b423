package report

import (
	"fmt"
	"strings"
)

// ToolTrouble is posted when the review could not be prepared.
func ToolTrouble(submissionID int64, diagnostic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Review of submission #%d\n\n", submissionID)
	b.WriteString("Git error while preparing to review. The change could not be applied to the course repository")
	b.WriteString(" and was not graded.\n")
	if d := strings.TrimSpace(diagnostic); d != "" {
		writeBlockTo(&b, d)
	}
	return b.String()
}

// UnknownAuthor is posted before closing a change from an unmapped account.
func UnknownAuthor(login string) string {
	return fmt.Sprintf("@%s is not registered as a student of this course, so the change cannot be graded and is closed. "+
		"Ask your teacher to add your GitHub account to the roster.", login)
}

// NotAccepted is posted when the author's class may not submit to the assignment.
func NotAccepted(login, assignment string) string {
	return fmt.Sprintf("@%s, %s is not assigned to your class. The change was not graded.", login, assignment)
}

// InternalFailure is posted when the review stopped on an unexpected error.
func InternalFailure(submissionID int64, detail string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Review of submission #%d\n\nThe review stopped on an internal error and the change was not graded.\n", submissionID)
	if d := strings.TrimSpace(detail); d != "" {
		writeBlockTo(&b, d)
	}
	return b.String()
}

func writeBlockTo(b *strings.Builder, text string) {
	b.WriteString("\n")
	writeBlock(b, text)
}
