package github_test

import (
	"testing"

	"gradeflow/internal/review/github"
	pkgerrors "gradeflow/pkg/errors"
)

func TestVerifySignature(t *testing.T) {
	t.Parallel()
	body := []byte(`{"action":"opened"}`)
	good := github.Sign("s3cret", body)

	tests := []struct {
		name   string
		secret string
		sig    string
		ok     bool
	}{
		{name: "valid", secret: "s3cret", sig: good, ok: true},
		{name: "disabled", secret: "", sig: "", ok: true},
		{name: "missing", secret: "s3cret", sig: "", ok: false},
		{name: "wrong secret", secret: "other", sig: good, ok: false},
		{name: "not hex", secret: "s3cret", sig: "sha256=zz", ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := github.VerifySignature(tt.secret, body, tt.sig)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !pkgerrors.Is(err, pkgerrors.WebhookRejected) {
				t.Fatalf("expected WebhookRejected, got %v", err)
			}
		})
	}
}

func TestEventActionable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		action, state string
		want          bool
	}{
		{"opened", "open", true},
		{"synchronize", "open", true},
		{"closed", "closed", false},
		{"labeled", "open", false},
		{"reopened", "", true},
	}
	for _, tt := range tests {
		ev := github.PullRequestEvent{Action: tt.action, PullRequest: github.PullRequest{State: tt.state}}
		if got := ev.Actionable(); got != tt.want {
			t.Errorf("Actionable(%s, %s) = %v, want %v", tt.action, tt.state, got, tt.want)
		}
	}
}
