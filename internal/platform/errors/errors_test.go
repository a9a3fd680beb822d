package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMessageAndUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := Wrap(CodeInternal, "request failed", cause)

	if err.Error() != "request failed" {
		t.Fatalf("message = %q", err.Error())
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := New(CodeNoPendingCeremony, "no ceremony in flight")
	b := New(CodeNoPendingCeremony, "different message")

	if !stderrors.Is(a, b) {
		t.Fatal("expected same-code errors to match")
	}
	if stderrors.Is(a, New(CodeNotFound, "missing")) {
		t.Fatal("expected different codes not to match")
	}
}

func TestCodeOfWalksChain(t *testing.T) {
	inner := New(CodeConstraintViolation, "duplicate credential")
	wrapped := fmt.Errorf("add credential: %w", inner)

	if got := CodeOf(wrapped); got != CodeConstraintViolation {
		t.Fatalf("code = %q", got)
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %q", got)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("code = %q", got)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	if got := CodeNoPendingCeremony.HTTPStatus(); got != http.StatusBadRequest {
		t.Fatalf("no pending ceremony status = %d", got)
	}
	if got := CodeVerificationFailed.HTTPStatus(); got != http.StatusBadRequest {
		t.Fatalf("verification failed status = %d", got)
	}
	if got := CodeUnknownUser.HTTPStatus(); got != CodeVerificationFailed.HTTPStatus() {
		t.Fatal("unknown user must be indistinguishable from verification failure")
	}
	if got := CodeNotFound.HTTPStatus(); got != http.StatusNotFound {
		t.Fatalf("not found status = %d", got)
	}
	if got := CodeConstraintViolation.HTTPStatus(); got != http.StatusConflict {
		t.Fatalf("constraint violation status = %d", got)
	}
	if got := CodeInternal.HTTPStatus(); got != http.StatusInternalServerError {
		t.Fatalf("internal status = %d", got)
	}
	if got := Code("SOMETHING_ELSE").HTTPStatus(); got != http.StatusInternalServerError {
		t.Fatalf("unknown code status = %d", got)
	}
}

func TestWithMetadata(t *testing.T) {
	err := WithMetadata(CodeNotFound, "credential missing", map[string]string{"credential_id": "cred-1"})
	if err.Metadata["credential_id"] != "cred-1" {
		t.Fatalf("metadata = %+v", err.Metadata)
	}
}
