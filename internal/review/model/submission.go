package model

import "time"

// Submission is one change-request proposed against an assignment.
type Submission struct {
	ID           int64     `json:"id"`
	AssignmentID int64     `json:"assignment_id"`
	Author       string    `json:"author"`
	AuthorID     int64     `json:"author_id"`
	ChangeRef    string    `json:"change_ref"`
	Merged       bool      `json:"merged"`
	Grade        int       `json:"grade"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ReviewBranch is the transient branch a submission is reviewed on.
func ReviewBranch(submissionID int64) string {
	return "review#" + itoa(int(submissionID))
}
