package controller

import (
	"context"
	"strconv"

	"gradeflow/internal/review/model"
	"gradeflow/internal/review/pipeline"
	"gradeflow/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// ReviewIntake is the part of intake the admin API drives.
type ReviewIntake interface {
	Rerun(ctx context.Context, submissionID int64, force bool, requestedBy string) (model.ReviewJob, error)
	ImportOpen(ctx context.Context) ([]pipeline.IntakeResult, error)
}

// StatusReader reads the cached status of a review.
type StatusReader interface {
	Get(ctx context.Context, submissionID int64) (model.ReviewStatus, error)
}

// ReviewController handles the review admin endpoints.
type ReviewController struct {
	intake ReviewIntake
	status StatusReader
}

// NewReviewController creates a new ReviewController.
func NewReviewController(intake ReviewIntake, status StatusReader) *ReviewController {
	return &ReviewController{intake: intake, status: status}
}

// Run queues another review of a recorded submission.
func (h *ReviewController) Run(c *gin.Context) {
	var req RunReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SubmissionID <= 0 {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	job, err := h.intake.Rerun(c.Request.Context(), req.SubmissionID, req.Force, c.GetString("subject"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, job)
}

// ImportOpen runs intake over every open change-request.
func (h *ReviewController) ImportOpen(c *gin.Context) {
	results, err := h.intake.ImportOpen(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ImportResponse{Items: results, Total: len(results)})
}

// GetStatus returns the latest status of one review.
func (h *ReviewController) GetStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.status.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// RunReviewRequest defines the rerun payload.
type RunReviewRequest struct {
	SubmissionID int64 `json:"submission_id" binding:"required"`
	Force        bool  `json:"force"`
}

// ImportResponse lists the intake outcome of every open change-request.
type ImportResponse struct {
	Items []pipeline.IntakeResult `json:"items"`
	Total int                     `json:"total"`
}
