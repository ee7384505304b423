// Package httpclient calls the review service API for reviewctl.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	appErr "gradeflow/pkg/errors"
)

// ResponseInfo is one API response. The envelope fields are filled when the
// body is the service's {code, message, data} JSON.
type ResponseInfo struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration

	Code    appErr.ErrorCode
	Message string
	Data    json.RawMessage
	TraceID string
}

type envelope struct {
	Code    appErr.ErrorCode `json:"code"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	TraceID string           `json:"trace_id"`
}

// Err turns a failed call into an *errors.Error. The envelope code wins over
// the HTTP status; a response without an envelope is judged by its status.
func (r ResponseInfo) Err() error {
	if r.Code != 0 && r.Code != appErr.Success {
		e := appErr.New(r.Code).WithDetail("status", r.StatusCode)
		if r.Message != "" {
			e.WithMessage(r.Message)
		}
		if r.TraceID != "" {
			e.WithDetail("trace_id", r.TraceID)
		}
		return e
	}
	if r.StatusCode < 300 {
		return nil
	}
	return appErr.Newf(statusCode(r.StatusCode), "request failed with HTTP %d", r.StatusCode).
		WithDetail("status", r.StatusCode)
}

func statusCode(status int) appErr.ErrorCode {
	switch status {
	case http.StatusBadRequest:
		return appErr.InvalidParams
	case http.StatusUnauthorized:
		return appErr.Unauthorized
	case http.StatusForbidden:
		return appErr.Forbidden
	case http.StatusNotFound:
		return appErr.NotFound
	case http.StatusTooManyRequests:
		return appErr.TooManyRequests
	case http.StatusServiceUnavailable:
		return appErr.ServiceUnavailable
	case http.StatusGatewayTimeout:
		return appErr.Timeout
	default:
		return appErr.InternalServerError
	}
}

// Client sends reviewctl requests to the review service.
type Client struct {
	baseURL       string
	http          *http.Client
	tokenProvider func() string
}

func New(baseURL string, timeout time.Duration, tokenProvider func() string) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: timeout},
		tokenProvider: tokenProvider,
	}
}

func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = strings.TrimRight(baseURL, "/")
}

func (c *Client) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		c.http.Timeout = timeout
	}
}

// Do sends one request. Transport failures are returned as errors; API
// failures are left to ResponseInfo.Err so the caller can still show the body.
func (c *Client) Do(ctx context.Context, method, path string, headers map[string]string, body []byte) (ResponseInfo, error) {
	var info ResponseInfo

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return info, fmt.Errorf("build request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	if c.tokenProvider != nil {
		if token := c.tokenProvider(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	info.Duration = time.Since(start)
	if err != nil {
		return info, appErr.Wrapf(err, appErr.ServiceUnavailable, "%s %s failed", method, path)
	}
	defer func() { _ = resp.Body.Close() }()

	info.StatusCode = resp.StatusCode
	info.Headers = resp.Header
	if info.Body, err = io.ReadAll(resp.Body); err != nil {
		return info, fmt.Errorf("read response body failed: %w", err)
	}
	var env envelope
	if json.Unmarshal(info.Body, &env) == nil {
		info.Code = env.Code
		info.Message = env.Message
		info.Data = env.Data
		info.TraceID = env.TraceID
	}
	return info, nil
}
