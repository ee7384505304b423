package controller_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gradeflow/internal/review/controller"
	"gradeflow/internal/review/github"
	"gradeflow/internal/review/model"
	"gradeflow/internal/review/pipeline"
	"gradeflow/internal/review/roster"
	appErr "gradeflow/pkg/errors"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fakeIntake struct {
	events  []github.PullRequestEvent
	reruns  []model.ReviewJob
	result  pipeline.IntakeResult
	imports []pipeline.IntakeResult
	err     error
}

func (f *fakeIntake) HandleEvent(_ context.Context, ev github.PullRequestEvent) (pipeline.IntakeResult, error) {
	f.events = append(f.events, ev)
	return f.result, f.err
}

func (f *fakeIntake) Rerun(_ context.Context, id int64, force bool, by string) (model.ReviewJob, error) {
	if f.err != nil {
		return model.ReviewJob{}, f.err
	}
	job := model.ReviewJob{SubmissionID: id, JobID: "j1", Force: force, RequestedBy: by}
	f.reruns = append(f.reruns, job)
	return job, nil
}

func (f *fakeIntake) ImportOpen(context.Context) ([]pipeline.IntakeResult, error) {
	return f.imports, f.err
}

type fakeStatus map[int64]model.ReviewStatus

func (f fakeStatus) Get(_ context.Context, id int64) (model.ReviewStatus, error) {
	s, ok := f[id]
	if !ok {
		return model.ReviewStatus{}, appErr.New(appErr.NotFound).WithMessage("review status not found")
	}
	return s, nil
}

type fakeImporter struct {
	got string
}

func (f *fakeImporter) Import(_ context.Context, r io.Reader) (roster.ImportResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return roster.ImportResult{}, err
	}
	f.got = string(data)
	return roster.ImportResult{Imported: strings.Count(f.got, "\n")}, nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func perform(t *testing.T, router http.Handler, method, path string, body []byte, headers map[string]string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var resp apiResponse
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func webhookRouter(intake *fakeIntake, secret string) *gin.Engine {
	r := gin.New()
	r.POST("/webhooks/github", controller.NewWebhookController(intake, secret).GitHub)
	return r
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	intake := &fakeIntake{}
	body := []byte(`{"action":"opened"}`)

	rec, resp := perform(t, webhookRouter(intake, "s3cret"), http.MethodPost, "/webhooks/github", body, map[string]string{
		github.EventHeader:     "pull_request",
		github.SignatureHeader: github.Sign("other", body),
	})
	if rec.Code != http.StatusForbidden || resp.Code != int(appErr.WebhookRejected) {
		t.Fatalf("status = %d code = %d", rec.Code, resp.Code)
	}
	if len(intake.events) != 0 {
		t.Fatalf("unsigned delivery reached intake")
	}
}

func TestWebhookHandlesPullRequest(t *testing.T) {
	intake := &fakeIntake{result: pipeline.IntakeResult{Outcome: pipeline.IntakeCreated, SubmissionID: 5}}
	body := []byte(`{"action":"opened","number":3,"pull_request":{"html_url":"https://github.com/c/r/pull/3","state":"open","body":"hw7","user":{"login":"octo"}}}`)

	rec, resp := perform(t, webhookRouter(intake, "s3cret"), http.MethodPost, "/webhooks/github", body, map[string]string{
		github.EventHeader:     "pull_request",
		github.SignatureHeader: github.Sign("s3cret", body),
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(intake.events) != 1 || intake.events[0].PullRequest.User.Login != "octo" {
		t.Fatalf("unexpected events %+v", intake.events)
	}
	var res pipeline.IntakeResult
	if err := json.Unmarshal(resp.Data, &res); err != nil || res.SubmissionID != 5 {
		t.Fatalf("unexpected data %s", resp.Data)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	tests := []struct {
		event string
	}{
		{"ping"},
		{"push"},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			intake := &fakeIntake{}
			rec, _ := perform(t, webhookRouter(intake, ""), http.MethodPost, "/webhooks/github", []byte(`{}`), map[string]string{
				github.EventHeader: tt.event,
			})
			if rec.Code != http.StatusOK || len(intake.events) != 0 {
				t.Fatalf("status = %d events = %d", rec.Code, len(intake.events))
			}
		})
	}
}

func reviewRouter(intake *fakeIntake, status fakeStatus) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("subject", "teacher")
		c.Next()
	})
	h := controller.NewReviewController(intake, status)
	r.POST("/api/v1/reviews", h.Run)
	r.POST("/api/v1/reviews/import", h.ImportOpen)
	r.GET("/api/v1/reviews/:id", h.GetStatus)
	return r
}

func TestRunReview(t *testing.T) {
	intake := &fakeIntake{}
	router := reviewRouter(intake, nil)

	rec, _ := perform(t, router, http.MethodPost, "/api/v1/reviews", []byte(`{"submission_id":42,"force":true}`), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if len(intake.reruns) != 1 || !intake.reruns[0].Force || intake.reruns[0].RequestedBy != "teacher" {
		t.Fatalf("unexpected reruns %+v", intake.reruns)
	}

	rec, _ = perform(t, router, http.MethodPost, "/api/v1/reviews", []byte(`{"force":true}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing id must be rejected, status = %d", rec.Code)
	}
}

func TestGetReviewStatus(t *testing.T) {
	status := fakeStatus{42: {SubmissionID: 42, State: model.StateCleanedUp, Outcome: model.StateMerged}}
	router := reviewRouter(&fakeIntake{}, status)

	rec, resp := perform(t, router, http.MethodGet, "/api/v1/reviews/42", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got model.ReviewStatus
	if err := json.Unmarshal(resp.Data, &got); err != nil || got.Outcome != model.StateMerged {
		t.Fatalf("unexpected data %s", resp.Data)
	}

	rec, _ = perform(t, router, http.MethodGet, "/api/v1/reviews/7", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	rec, _ = perform(t, router, http.MethodGet, "/api/v1/reviews/abc", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestImportOpen(t *testing.T) {
	intake := &fakeIntake{imports: []pipeline.IntakeResult{{Outcome: pipeline.IntakeCreated}, {Outcome: pipeline.IntakeDuplicate}}}
	rec, resp := perform(t, reviewRouter(intake, nil), http.MethodPost, "/api/v1/reviews/import", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got controller.ImportResponse
	if err := json.Unmarshal(resp.Data, &got); err != nil || got.Total != 2 {
		t.Fatalf("unexpected data %s", resp.Data)
	}

	intake.err = appErr.New(appErr.ProviderError)
	rec, _ = perform(t, reviewRouter(intake, nil), http.MethodPost, "/api/v1/reviews/import", nil, nil)
	if rec.Code < 500 {
		t.Fatalf("provider failure must be a server error, status = %d", rec.Code)
	}
}

func TestRosterImport(t *testing.T) {
	importer := &fakeImporter{}
	r := gin.New()
	r.POST("/api/v1/roster/import", controller.NewRosterController(importer).Import)

	csv := "class,number,first,last,github\nB,12,Ada,Octo,octo\n"
	rec, _ := perform(t, r, http.MethodPost, "/api/v1/roster/import", []byte(csv), map[string]string{"Content-Type": "text/csv"})
	if rec.Code != http.StatusOK || importer.got != csv {
		t.Fatalf("status = %d got = %q", rec.Code, importer.got)
	}

	rec, _ = perform(t, r, http.MethodPost, "/api/v1/roster/import", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body must be rejected, status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/healthz", controller.NewHealthController(map[string]controller.Pinger{
		"mysql": pinger{},
		"redis": pinger{err: errors.New("connection refused")},
	}, time.Second).Check)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}
