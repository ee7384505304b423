package repl_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gradeflow/internal/cli/command"
	"gradeflow/internal/cli/config"
	httpclient "gradeflow/internal/cli/http"
	"gradeflow/internal/cli/repl"
	"gradeflow/internal/cli/state"
	"gradeflow/internal/common/http/middleware"
)

type recorded struct {
	mu      sync.Mutex
	path    string
	subject string
	body    string
}

func newServer(t *testing.T, rec *recorded) *httptest.Server {
	t.Helper()
	verifier := middleware.NewTokenVerifier("s3cret", "gradeflow")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.path = r.URL.Path
		rec.body = string(data)
		principal, err := verifier.Verify(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if err != nil && r.URL.Path != "/healthz" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":10004,"message":"Unauthorized","trace_id":"t-1"}`))
			return
		}
		rec.subject = principal.Subject
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"code":10000,"message":"Success","data":{"job_id":"j1"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSession(t *testing.T, baseURL string, auth config.AuthConfig) (*repl.Session, *bytes.Buffer) {
	t.Helper()
	pretty := false
	cfg := config.Config{
		BaseURL:        baseURL,
		Timeout:        time.Second,
		TokenStatePath: filepath.Join(t.TempDir(), "state.json"),
		PrettyJSON:     &pretty,
		Auth:           auth,
	}
	tokenState := &state.TokenState{}
	client := httpclient.New(cfg.BaseURL, cfg.Timeout, func() string { return tokenState.AccessToken })
	session := repl.New(client, command.Registry(), tokenState, cfg)
	out := &bytes.Buffer{}
	session.SetOutput(out)
	return session, out
}

func TestExecMintsTokenForAuthenticatedCommands(t *testing.T) {
	rec := &recorded{}
	srv := newServer(t, rec)
	session, out := newSession(t, srv.URL, config.AuthConfig{
		Secret:  "s3cret",
		Issuer:  "gradeflow",
		Subject: "ms-novak",
		Role:    "teacher",
		TTL:     time.Hour,
	})

	if err := session.Exec(context.Background(), "review run submission_id=42 force=yes"); err != nil {
		t.Fatalf("exec: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.path != "/api/v1/reviews" || rec.subject != "ms-novak" {
		t.Fatalf("unexpected request path=%q subject=%q", rec.path, rec.subject)
	}
	if !strings.Contains(rec.body, `"submission_id":42`) {
		t.Fatalf("unexpected body %s", rec.body)
	}
	if !strings.Contains(out.String(), "HTTP 202") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestExecWithoutCredentials(t *testing.T) {
	rec := &recorded{}
	srv := newServer(t, rec)
	session, _ := newSession(t, srv.URL, config.AuthConfig{})

	if err := session.Exec(context.Background(), "review status id=1"); err == nil {
		t.Fatal("expected error without a token or auth secret")
	}
	if err := session.Exec(context.Background(), "service health"); err != nil {
		t.Fatalf("health needs no token: %v", err)
	}
}

func TestExecRejectsUnknownCommands(t *testing.T) {
	session, _ := newSession(t, "http://127.0.0.1:0", config.AuthConfig{})
	for _, line := range []string{"review", "review delete id=1", "review run 42", `review run "unterminated`} {
		if err := session.Exec(context.Background(), line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}
}
