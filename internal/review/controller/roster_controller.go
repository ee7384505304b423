package controller

import (
	"context"
	"io"

	"gradeflow/internal/review/roster"
	"gradeflow/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const maxRosterBody = 2 << 20

// RosterImporter loads roster CSV files.
type RosterImporter interface {
	Import(ctx context.Context, r io.Reader) (roster.ImportResult, error)
}

// RosterController handles roster administration.
type RosterController struct {
	importer RosterImporter
}

func NewRosterController(importer RosterImporter) *RosterController {
	return &RosterController{importer: importer}
}

// Import reads a CSV roster from the request body.
func (h *RosterController) Import(c *gin.Context) {
	if c.Request.ContentLength == 0 {
		response.BadRequest(c, "Empty roster")
		return
	}
	result, err := h.importer.Import(c.Request.Context(), io.LimitReader(c.Request.Body, maxRosterBody))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
