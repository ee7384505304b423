package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	pkgerrors "gradeflow/pkg/errors"
)

// SignatureHeader carries the HMAC of the webhook body.
const SignatureHeader = "X-Hub-Signature-256"

// EventHeader names the webhook event type.
const EventHeader = "X-GitHub-Event"

// VerifySignature checks a "sha256=<hex>" signature of body against secret.
// An empty secret disables verification.
func VerifySignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return nil
	}
	hexSig, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return pkgerrors.New(pkgerrors.WebhookRejected).WithMessage("missing webhook signature")
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return pkgerrors.New(pkgerrors.WebhookRejected).WithMessage("malformed webhook signature")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return pkgerrors.New(pkgerrors.WebhookRejected).WithMessage("webhook signature mismatch")
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
