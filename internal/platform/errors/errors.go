package errors

import (
	stderrors "errors"
	"net/http"
)

// Error is the domain error type with structured metadata.
type Error struct {
	Code     Code              // Machine-readable error code
	Message  string            // Internal message (for logs/telemetry)
	Metadata map[string]string // Additional context, e.g. field names
	Cause    error             // Wrapped underlying error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil && e.Message != "" {
		return e.Message + ": " + e.Cause.Error()
	}
	if e.Message == "" && e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a simple domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WithMetadata creates a domain error with metadata.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Metadata: metadata,
	}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode returns the code of the first domain error in err's chain, or
// CodeUnknown.
func GetCode(err error) Code {
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return GetCode(err) == code
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return GetCode(err).HTTPStatus()
}

// PublicMessage returns the message safe to show to a customer. Internal
// messages never leave the process.
func PublicMessage(err error) string {
	code := GetCode(err)
	if msg, ok := publicMessages[code]; ok {
		return msg
	}
	return publicMessages[CodeUnknown]
}

// Fields returns the metadata of the first domain error in err's chain.
func Fields(err error) map[string]string {
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Metadata
	}
	return nil
}

var publicMessages = map[Code]string{
	CodeUnknown:             "Something went wrong. Please try again.",
	CodeInvalidArgument:     "The request was not valid.",
	CodeValidation:          "Please correct the highlighted fields.",
	CodeNotFound:            "We could not find what you were looking for.",
	CodeAlreadyExists:       "That record already exists.",
	CodeProductUnavailable:  "That product is not available.",
	CodeUnknownPrice:        "That price is not recognized.",
	CodeShippingUnsupported: "We do not ship to that destination yet.",
	CodeServiceUnavailable:  "That shipping service is not available for this destination.",
	CodePaymentFailed:       "The payment could not be processed.",
	CodeWebhookSignature:    "Invalid signature.",
	CodeWebhookUnsupported:  "Event ignored.",
	CodeUnauthenticated:     "Please sign in to continue.",
	CodeForbidden:           "You do not have access to this resource.",
	CodeAccountPending:      "Your contractor account is awaiting approval.",
	CodeAccountSuspended:    "Your contractor account is suspended. Please contact support.",
	CodeLicenseInvalid:      "That license number does not match the format for your state.",
	CodeMagicLinkInvalid:    "That sign-in link is not valid.",
	CodeMagicLinkExpired:    "That sign-in link has expired. Request a new one.",
	CodePasskeyCeremony:     "Passkey verification failed.",
	CodeSessionInvalid:      "Your session has expired. Please sign in again.",
	CodeStatusTransition:    "That change is not allowed right now.",
	CodeSubmissionRejected:  "We could not accept your submission. Please reload the page and try again.",
	CodeRateLimited:         "Too many attempts. Please wait a few minutes and try again.",
	CodeUnknownForm:         "Unknown form.",
	CodeUpstream:            "A partner service is unavailable. Please try again shortly.",
}
