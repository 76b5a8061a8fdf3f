package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Confirmation carries the fields the browser checkout posts back after the
// external gateway approves a payment.
type Confirmation struct {
	GatewayPaymentID string
	GatewayOrderID   string
	Signature        string
}

// SignatureVerifier checks gateway callback signatures. The gateway signs
// "<gateway order id>|<gateway payment id>" with the shared key secret.
type SignatureVerifier struct {
	secret []byte
}

// NewSignatureVerifier constructs a verifier for the given key secret. An
// empty secret yields a disabled verifier; callers should treat signatures as
// unverified rather than invalid in that case.
func NewSignatureVerifier(secret string) *SignatureVerifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &SignatureVerifier{}
	}
	return &SignatureVerifier{secret: []byte(secret)}
}

// Enabled reports whether a key secret was configured.
func (v *SignatureVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Sign computes the hex signature for the given gateway order and payment
// ids. Returns "" when the verifier is disabled.
func (v *SignatureVerifier) Sign(gatewayOrderID, gatewayPaymentID string) string {
	if !v.Enabled() {
		return ""
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(gatewayOrderID + "|" + gatewayPaymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether the confirmation signature matches the expected HMAC.
// It always fails when the verifier is disabled; call Enabled first.
func (v *SignatureVerifier) Verify(confirmation Confirmation) bool {
	if !v.Enabled() {
		return false
	}

	payload := confirmation.GatewayOrderID + "|" + confirmation.GatewayPaymentID
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))

	provided := strings.TrimSpace(strings.ToLower(confirmation.Signature))
	return hmac.Equal([]byte(expected), []byte(provided))
}
