package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func performRequest(router http.Handler, method, path string, headers map[string]string) (*httptest.ResponseRecorder, apiResponse, error) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	router.ServeHTTP(rec, req)
	var resp apiResponse
	body := bytes.TrimSpace(rec.Body.Bytes())
	if len(body) > 0 && body[0] == '{' {
		if err := json.Unmarshal(body, &resp); err != nil {
			return rec, resp, err
		}
	}
	return rec, resp, nil
}

func newToken(t *testing.T, secret, issuer, subject, role, typ string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": role,
		"typ":  typ,
		"sub":  subject,
		"iss":  issuer,
		"iat":  time.Now().Unix(),
		"exp":  exp.Unix(),
	})
	raw, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return raw
}

func newAccessToken(t *testing.T, secret, issuer, subject, role string) string {
	t.Helper()
	return newToken(t, secret, issuer, subject, role, "access", time.Now().Add(time.Hour))
}
