package model

// StateChange records when a review entered a state.
type StateChange struct {
	State State `json:"state"`
	At    int64 `json:"at"`
}

// ReviewStatus is the externally visible progress of one review job.
type ReviewStatus struct {
	SubmissionID  int64         `json:"submission_id"`
	JobID         string        `json:"job_id"`
	State         State         `json:"state"`
	Outcome       State         `json:"outcome,omitempty"`
	Earned        int           `json:"earned"`
	Max           int           `json:"max"`
	Stored        []int         `json:"stored,omitempty"`
	ErrorCode     int           `json:"error_code,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	// CleanupFailed is set when the workspace could not be restored to the
	// default branch after the review.
	CleanupFailed bool          `json:"cleanup_failed,omitempty"`
	History       []StateChange `json:"history"`
	CreatedAt     int64         `json:"created_at"`
	UpdatedAt     int64         `json:"updated_at"`
}

// StatusEventFinal marks the event emitted once a review has finished.
const StatusEventFinal = "final"

// StatusEvent is published to the status topic.
type StatusEvent struct {
	Type      string       `json:"type"`
	Status    ReviewStatus `json:"status"`
	CreatedAt int64        `json:"created_at"`
}

// ReviewJob is the queued request to review one submission.
type ReviewJob struct {
	SubmissionID int64  `json:"submission_id"`
	JobID        string `json:"job_id"`
	Force        bool   `json:"force"`
	RequestedBy  string `json:"requested_by,omitempty"`
	EnqueuedAt   int64  `json:"enqueued_at"`
}
