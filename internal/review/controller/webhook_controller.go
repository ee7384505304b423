package controller

import (
	"context"
	"encoding/json"
	"io"

	"gradeflow/internal/review/github"
	"gradeflow/internal/review/pipeline"
	appErr "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/logger"
	"gradeflow/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	maxWebhookBody   = 5 << 20
	pullRequestEvent = "pull_request"
	pingEvent        = "ping"
)

// EventIntake turns change-request events into submissions.
type EventIntake interface {
	HandleEvent(ctx context.Context, ev github.PullRequestEvent) (pipeline.IntakeResult, error)
}

// WebhookController receives provider webhooks.
type WebhookController struct {
	intake EventIntake
	secret string
}

// NewWebhookController creates a controller verifying deliveries with secret.
// An empty secret accepts unsigned deliveries.
func NewWebhookController(intake EventIntake, secret string) *WebhookController {
	return &WebhookController{intake: intake, secret: secret}
}

// GitHub handles one webhook delivery.
func (h *WebhookController) GitHub(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody+1))
	if err != nil {
		response.BadRequest(c, "Unreadable body")
		return
	}
	if len(body) > maxWebhookBody {
		response.BadRequest(c, "Payload too large")
		return
	}
	if err := github.VerifySignature(h.secret, body, c.GetHeader(github.SignatureHeader)); err != nil {
		response.Error(c, err)
		return
	}

	switch event := c.GetHeader(github.EventHeader); event {
	case pingEvent:
		response.Success(c, gin.H{"pong": true})
		return
	case pullRequestEvent:
	default:
		logger.Debug(c.Request.Context(), "webhook event ignored", zap.String("event", event))
		response.Success(c, pipeline.IntakeResult{Outcome: pipeline.IntakeRejected, Reason: "event " + event + " is not handled"})
		return
	}

	var ev github.PullRequestEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		response.Error(c, appErr.Wrapf(err, appErr.InvalidFormat, "decode pull request event failed"))
		return
	}
	res, err := h.intake.HandleEvent(c.Request.Context(), ev)
	if err != nil {
		response.Error(c, err)
		return
	}
	if res.Outcome == pipeline.IntakeCreated {
		response.Accepted(c, res)
		return
	}
	response.Success(c, res)
}
