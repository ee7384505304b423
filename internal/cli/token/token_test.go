package token_test

import (
	"testing"
	"time"

	"gradeflow/internal/cli/token"
	"gradeflow/internal/common/http/middleware"
)

func TestMintIsAcceptedByVerifier(t *testing.T) {
	signed, expires, err := token.Mint("s3cret", "gradeflow", "ms-novak", "teacher", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if time.Until(expires) <= 0 {
		t.Fatalf("token already expired at %v", expires)
	}

	principal, err := middleware.NewTokenVerifier("s3cret", "gradeflow").Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if principal.Subject != "ms-novak" || principal.Role != "teacher" {
		t.Fatalf("unexpected principal %+v", principal)
	}

	if _, err := middleware.NewTokenVerifier("other", "gradeflow").Verify(signed); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}
}

func TestMintRequiresSecretAndSubject(t *testing.T) {
	if _, _, err := token.Mint("", "", "ms-novak", "teacher", time.Hour, time.Now()); err == nil {
		t.Fatal("expected error without secret")
	}
	if _, _, err := token.Mint("s3cret", "", "", "teacher", time.Hour, time.Now()); err == nil {
		t.Fatal("expected error without subject")
	}
}
