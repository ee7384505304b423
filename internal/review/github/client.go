// Package github talks to the GitHub REST API on behalf of the reviewer.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "gradeflow/pkg/errors"
	"gradeflow/pkg/utils/logger"

	"github.com/zeromicro/go-zero/rest/httpc"
	"go.uber.org/zap"
)

const (
	defaultBaseURL  = "https://api.github.com"
	defaultTimeout  = 15 * time.Second
	pageSize        = 100
	maxErrorBody    = 2048
	mediaTypeJSON   = "application/vnd.github+json"
	mediaTypeDiff   = "application/vnd.github.diff"
	defaultAttempts = 3
)

// Config configures the API client.
type Config struct {
	BaseURL       string        `yaml:"baseURL"`
	Token         string        `yaml:"token"`
	Owner         string        `yaml:"owner"`
	Repo          string        `yaml:"repo"`
	Timeout       time.Duration `yaml:"timeout"`
	WebhookSecret string        `yaml:"webhookSecret"`
	// MergeablePoll is the wait between mergeability checks while GitHub is
	// still computing the answer.
	MergeablePoll     time.Duration `yaml:"mergeablePoll"`
	MergeableAttempts int           `yaml:"mergeableAttempts"`
}

// Client is a GitHub REST client.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MergeablePoll <= 0 {
		cfg.MergeablePoll = time.Second
	}
	if cfg.MergeableAttempts <= 0 {
		cfg.MergeableAttempts = defaultAttempts
	}
	return &Client{cfg: cfg}
}

// GetPull fetches one pull request.
func (c *Client) GetPull(ctx context.Context, ref string) (PullRequest, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return PullRequest{}, err
	}
	var pr PullRequest
	err = c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d", r.Owner, r.Repo, r.Number), nil, &pr)
	return pr, err
}

// ChangedFiles lists the paths touched by the pull request. Removed files
// are left out.
func (c *Client) ChangedFiles(ctx context.Context, ref string) ([]string, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	var paths []string
	for page := 1; ; page++ {
		var files []changedFile
		path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=%d&page=%d", r.Owner, r.Repo, r.Number, pageSize, page)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &files); err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.Status == "removed" {
				continue
			}
			paths = append(paths, f.Filename)
		}
		if len(files) < pageSize {
			return paths, nil
		}
	}
}

// Patch returns the unified diff of the pull request.
func (c *Client) Patch(ctx context.Context, ref string) ([]byte, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d", r.Owner, r.Repo, r.Number), mediaTypeDiff, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.ProviderError, "read patch of %s", r)
	}
	return data, nil
}

// Comment posts text as a comment on the pull request conversation.
func (c *Client) Comment(ctx context.Context, ref, text string) error {
	r, err := ParseRef(ref)
	if err != nil {
		return err
	}
	body := map[string]string{"body": text}
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/issues/%d/comments", r.Owner, r.Repo, r.Number), body, nil)
}

// Merge merges the pull request. A refusal by GitHub (not mergeable, head
// moved) is reported as false without an error.
func (c *Client) Merge(ctx context.Context, ref, message string, squash bool) (bool, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return false, err
	}
	method := "merge"
	if squash {
		method = "squash"
	}
	payload := map[string]string{"commit_title": message, "merge_method": method}
	resp, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", r.Owner, r.Repo, r.Number), mediaTypeJSON, payload)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Merged bool `json:"merged"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return false, pkgerrors.Wrapf(err, pkgerrors.ProviderError, "decode merge response of %s", r)
		}
		return out.Merged, nil
	case http.StatusMethodNotAllowed, http.StatusConflict:
		logger.Warn(ctx, "merge refused", zap.String("ref", r.String()), zap.Int("status", resp.StatusCode))
		return false, nil
	default:
		return false, checkStatus(resp, http.StatusOK)
	}
}

// IsMerged reports whether the pull request has been merged.
func (c *Client) IsMerged(ctx context.Context, ref string) (bool, error) {
	r, err := ParseRef(ref)
	if err != nil {
		return false, err
	}
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", r.Owner, r.Repo, r.Number), mediaTypeJSON, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, checkStatus(resp, http.StatusNoContent)
	}
}

// IsMergeable reports whether GitHub can merge the pull request cleanly.
// While GitHub is still computing it, the check is repeated a few times and
// an unknown answer counts as not mergeable.
func (c *Client) IsMergeable(ctx context.Context, ref string) (bool, error) {
	for attempt := 1; ; attempt++ {
		pr, err := c.GetPull(ctx, ref)
		if err != nil {
			return false, err
		}
		if pr.Mergeable != nil {
			return *pr.Mergeable, nil
		}
		if attempt >= c.cfg.MergeableAttempts {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(c.cfg.MergeablePoll):
		}
	}
}

// Close closes the pull request without merging.
func (c *Client) Close(ctx context.Context, ref string) error {
	r, err := ParseRef(ref)
	if err != nil {
		return err
	}
	body := map[string]string{"state": "closed"}
	return c.doJSON(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/%s/pulls/%d", r.Owner, r.Repo, r.Number), body, nil)
}

// ListOpenPulls lists the open pull requests of the configured repository.
func (c *Client) ListOpenPulls(ctx context.Context) ([]PullRequest, error) {
	if c.cfg.Owner == "" || c.cfg.Repo == "" {
		return nil, pkgerrors.New(pkgerrors.InvalidParams).WithMessage("repository owner and name are not configured")
	}
	var all []PullRequest
	for page := 1; ; page++ {
		var prs []PullRequest
		path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&per_page=%d&page=%d", c.cfg.Owner, c.cfg.Repo, pageSize, page)
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &prs); err != nil {
			return nil, err
		}
		all = append(all, prs...)
		if len(prs) < pageSize {
			return all, nil
		}
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, mediaTypeJSON, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, http.StatusOK, http.StatusCreated, http.StatusNoContent); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.ProviderError, "decode %s %s", method, path)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, accept string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrapf(err, pkgerrors.ProviderError, "encode request body")
		}
		reader = bytes.NewReader(data)
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		cancel()
		return nil, pkgerrors.Wrapf(err, pkgerrors.ProviderError, "build request %s %s", method, path)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := httpc.DoRequest(req)
	if err != nil {
		cancel()
		return nil, pkgerrors.Wrapf(err, pkgerrors.ProviderError, "%s %s failed", method, path)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose releases the request context once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

func checkStatus(resp *http.Response, ok ...int) error {
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return pkgerrors.Newf(pkgerrors.ProviderError, "github returned %d for %s %s",
		resp.StatusCode, resp.Request.Method, resp.Request.URL.Path).
		WithDetail("status", resp.StatusCode).
		WithDetail("body", strings.TrimSpace(string(data)))
}
