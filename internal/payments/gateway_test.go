package payments

import (
	"strings"
	"testing"
)

func TestSignatureVerifierDisabledWithoutSecret(t *testing.T) {
	verifier := NewSignatureVerifier("   ")
	if verifier.Enabled() {
		t.Fatalf("blank secret must disable the verifier")
	}
	if verifier.Sign("gw_1", "pay_1") != "" {
		t.Fatalf("disabled verifier must not sign")
	}
	if verifier.Verify(Confirmation{GatewayOrderID: "gw_1", GatewayPaymentID: "pay_1"}) {
		t.Fatalf("disabled verifier must not verify")
	}
}

func TestSignatureVerifierRoundTrip(t *testing.T) {
	verifier := NewSignatureVerifier("topsecret")
	signature := verifier.Sign("gw_1", "pay_1")
	if signature == "" {
		t.Fatalf("expected signature")
	}

	ok := verifier.Verify(Confirmation{
		GatewayOrderID:   "gw_1",
		GatewayPaymentID: "pay_1",
		Signature:        signature,
	})
	if !ok {
		t.Fatalf("valid signature rejected")
	}

	// Uppercase and surrounding whitespace from sloppy clients still verify.
	ok = verifier.Verify(Confirmation{
		GatewayOrderID:   "gw_1",
		GatewayPaymentID: "pay_1",
		Signature:        "  " + strings.ToUpper(signature) + " ",
	})
	if !ok {
		t.Fatalf("normalised signature rejected")
	}
}

func TestSignatureVerifierRejectsTamperedPayload(t *testing.T) {
	verifier := NewSignatureVerifier("topsecret")
	signature := verifier.Sign("gw_1", "pay_1")

	if verifier.Verify(Confirmation{GatewayOrderID: "gw_2", GatewayPaymentID: "pay_1", Signature: signature}) {
		t.Fatalf("signature for different order accepted")
	}
	if verifier.Verify(Confirmation{GatewayOrderID: "gw_1", GatewayPaymentID: "pay_2", Signature: signature}) {
		t.Fatalf("signature for different payment accepted")
	}
	if verifier.Verify(Confirmation{GatewayOrderID: "gw_1", GatewayPaymentID: "pay_1", Signature: "deadbeef"}) {
		t.Fatalf("garbage signature accepted")
	}
}

func TestSignatureVerifierDifferentSecrets(t *testing.T) {
	a := NewSignatureVerifier("secret-a")
	b := NewSignatureVerifier("secret-b")

	signature := a.Sign("gw_1", "pay_1")
	if b.Verify(Confirmation{GatewayOrderID: "gw_1", GatewayPaymentID: "pay_1", Signature: signature}) {
		t.Fatalf("signature from another secret accepted")
	}
}
