package github

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	pkgerrors "gradeflow/pkg/errors"
)

// User is the account that opened a pull request.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// PullRequest is the subset of the pull request resource the reviewer uses.
type PullRequest struct {
	Number    int    `json:"number"`
	HTMLURL   string `json:"html_url"`
	State     string `json:"state"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Merged    bool   `json:"merged"`
	Mergeable *bool  `json:"mergeable"`
	User      User   `json:"user"`
}

// PullRequestEvent is the webhook payload of the pull_request event.
type PullRequestEvent struct {
	Action      string      `json:"action"`
	Number      int         `json:"number"`
	PullRequest PullRequest `json:"pull_request"`
}

// Actionable reports whether the event should start intake.
func (e PullRequestEvent) Actionable() bool {
	switch e.Action {
	case "opened", "reopened", "synchronize", "edited":
		return e.PullRequest.State == "" || e.PullRequest.State == "open"
	}
	return false
}

// Pushed reports whether the event carries new commits or reopens the change,
// so an existing submission should be reviewed again.
func (e PullRequestEvent) Pushed() bool {
	return e.Action == "synchronize" || e.Action == "reopened"
}

type changedFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// Ref locates one pull request.
type Ref struct {
	Owner  string
	Repo   string
	Number int
}

func (r Ref) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// URL is the browser address of the pull request.
func (r Ref) URL() string {
	return fmt.Sprintf("https://github.com/%s/%s/pull/%d", r.Owner, r.Repo, r.Number)
}

// ParseRef accepts "https://github.com/<owner>/<repo>/pull/<n>" and the short
// form "<owner>/<repo>#<n>".
func ParseRef(ref string) (Ref, error) {
	ref = strings.TrimSpace(ref)
	if owner, rest, ok := strings.Cut(ref, "/"); ok && !strings.Contains(ref, "://") {
		repo, num, ok := strings.Cut(rest, "#")
		if ok {
			return newRef(owner, repo, num, ref)
		}
	}
	u, err := url.Parse(ref)
	if err != nil {
		return Ref{}, pkgerrors.Wrapf(err, pkgerrors.InvalidFormat, "invalid change reference %q", ref)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 4 || parts[2] != "pull" {
		return Ref{}, pkgerrors.Newf(pkgerrors.InvalidFormat, "invalid change reference %q", ref)
	}
	return newRef(parts[0], parts[1], parts[3], ref)
}

func newRef(owner, repo, num, raw string) (Ref, error) {
	n, err := strconv.Atoi(num)
	if err != nil || n <= 0 || owner == "" || repo == "" {
		return Ref{}, pkgerrors.Newf(pkgerrors.InvalidFormat, "invalid change reference %q", raw)
	}
	return Ref{Owner: owner, Repo: repo, Number: n}, nil
}
