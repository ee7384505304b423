package repository

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"gradeflow/internal/common/mq"
	"gradeflow/internal/review/model"
	appErr "gradeflow/pkg/errors"

	"github.com/google/uuid"
)

// HeaderJobID carries the review job id on queued messages.
const HeaderJobID = "x-review-job-id"

// JobDispatcher enqueues review jobs.
type JobDispatcher interface {
	Dispatch(ctx context.Context, job model.ReviewJob) (model.ReviewJob, error)
}

// MQJobDispatcher publishes review jobs to the review topic. Jobs are keyed
// by submission id so one submission always lands on the same partition.
type MQJobDispatcher struct {
	queue mq.Producer
	topic string
}

func NewMQJobDispatcher(queue mq.Producer, topic string) *MQJobDispatcher {
	return &MQJobDispatcher{queue: queue, topic: topic}
}

// Dispatch fills in the job id and enqueue time and publishes job.
func (d *MQJobDispatcher) Dispatch(ctx context.Context, job model.ReviewJob) (model.ReviewJob, error) {
	if job.SubmissionID <= 0 {
		return job, appErr.ValidationError("submission_id", "required")
	}
	if d.queue == nil || d.topic == "" {
		return job, appErr.New(appErr.ServiceUnavailable).WithMessage("review queue is not configured")
	}
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	job.EnqueuedAt = time.Now().Unix()
	payload, err := json.Marshal(job)
	if err != nil {
		return job, appErr.Wrapf(err, appErr.InternalServerError, "marshal review job failed")
	}
	msg := mq.NewMessage(payload)
	msg.ID = strconv.FormatInt(job.SubmissionID, 10)
	msg.SetHeader(HeaderJobID, job.JobID)
	if err := d.queue.Publish(ctx, d.topic, msg); err != nil {
		return job, appErr.Wrapf(err, appErr.QueueError, "enqueue review of submission %d failed", job.SubmissionID)
	}
	return job, nil
}

// DecodeJob parses a queued review job.
func DecodeJob(msg *mq.Message) (model.ReviewJob, error) {
	var job model.ReviewJob
	if msg == nil {
		return job, appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		return job, appErr.Wrapf(err, appErr.InvalidFormat, "decode review job failed")
	}
	if job.SubmissionID <= 0 {
		return job, appErr.ValidationError("submission_id", "required")
	}
	if job.JobID == "" {
		job.JobID, _ = msg.GetHeader(HeaderJobID)
	}
	return job, nil
}
