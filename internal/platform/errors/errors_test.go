package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("load order: %w", New(CodeNotFound, "order o-1 not found"))
	if !stderrors.Is(err, New(CodeNotFound, "")) {
		t.Fatal("expected errors.Is to match on code")
	}
	if stderrors.Is(err, New(CodeForbidden, "")) {
		t.Fatal("expected errors.Is to reject a different code")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "plain", err: stderrors.New("boom"), want: http.StatusInternalServerError},
		{name: "not found", err: New(CodeNotFound, "x"), want: http.StatusNotFound},
		{name: "wrapped validation", err: fmt.Errorf("outer: %w", New(CodeValidation, "x")), want: http.StatusUnprocessableEntity},
		{name: "rate limited", err: New(CodeRateLimited, "x"), want: http.StatusTooManyRequests},
		{name: "upstream", err: Wrap(CodeUpstream, "shipstation", stderrors.New("503")), want: http.StatusBadGateway},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatus(tc.err); got != tc.want {
				t.Fatalf("HTTPStatus() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestPublicMessageHidesInternalText(t *testing.T) {
	err := Wrap(CodeUpstream, "shipstation key rejected", stderrors.New("401"))
	if got := PublicMessage(err); got == err.Error() {
		t.Fatalf("public message leaked internal message %q", got)
	}
	if got := PublicMessage(stderrors.New("db locked")); got != publicMessages[CodeUnknown] {
		t.Fatalf("PublicMessage() = %q, want unknown message", got)
	}
}

func TestEveryCodeHasPublicMessage(t *testing.T) {
	codes := []Code{
		CodeInvalidArgument, CodeValidation, CodeNotFound, CodeAlreadyExists,
		CodeProductUnavailable, CodeUnknownPrice, CodeShippingUnsupported,
		CodeServiceUnavailable, CodePaymentFailed, CodeWebhookSignature,
		CodeWebhookUnsupported, CodeUnauthenticated, CodeForbidden,
		CodeAccountPending, CodeAccountSuspended, CodeLicenseInvalid,
		CodeMagicLinkInvalid, CodeMagicLinkExpired, CodePasskeyCeremony,
		CodeSessionInvalid, CodeStatusTransition, CodeSubmissionRejected,
		CodeRateLimited, CodeUnknownForm, CodeUpstream,
	}
	for _, code := range codes {
		if _, ok := publicMessages[code]; !ok {
			t.Errorf("missing public message for %s", code)
		}
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeUpstream, "create order", stderrors.New("timeout"))
	if got, want := err.Error(), "create order: timeout"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
	if !stderrors.Is(err, err.Cause) {
		t.Fatal("expected cause in chain")
	}
}
