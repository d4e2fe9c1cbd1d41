// Package webhook validates that an inbound event body was produced by the
// payment provider.
package webhook

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the request header carrying the hex-encoded
// HMAC-SHA512 of the raw body.
const SignatureHeader = "x-paystack-signature"

// Verifier checks webhook signatures against the shared provider secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: strings.TrimSpace(secret)}
}

// Verify reports whether the signature matches the exact raw payload.
// Fails closed: a missing secret or missing header never verifies.
func (v *Verifier) Verify(payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if v.secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(v.secret))
	_, _ = mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(signature), []byte(expected))
}
