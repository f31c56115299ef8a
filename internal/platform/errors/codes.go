// Package errors provides structured domain errors that map onto HTTP
// responses.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeValidation      Code = "VALIDATION_FAILED"

	// Storage errors
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// Catalog errors
	CodeProductUnavailable Code = "PRODUCT_UNAVAILABLE"
	CodeUnknownPrice       Code = "UNKNOWN_PRICE"

	// Shipping errors
	CodeShippingUnsupported Code = "SHIPPING_DESTINATION_UNSUPPORTED"
	CodeServiceUnavailable  Code = "SHIPPING_SERVICE_UNAVAILABLE"

	// Payment errors
	CodePaymentFailed      Code = "PAYMENT_FAILED"
	CodeWebhookSignature   Code = "WEBHOOK_SIGNATURE_INVALID"
	CodeWebhookUnsupported Code = "WEBHOOK_UNSUPPORTED"

	// Account errors
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeAccountPending   Code = "ACCOUNT_PENDING"
	CodeAccountSuspended Code = "ACCOUNT_SUSPENDED"
	CodeLicenseInvalid   Code = "LICENSE_FORMAT_INVALID"
	CodeMagicLinkInvalid Code = "MAGIC_LINK_INVALID"
	CodeMagicLinkExpired Code = "MAGIC_LINK_EXPIRED"
	CodePasskeyCeremony  Code = "PASSKEY_CEREMONY_FAILED"
	CodeSessionInvalid   Code = "SESSION_INVALID"
	CodeStatusTransition Code = "INVALID_STATUS_TRANSITION"

	// Form errors
	CodeSubmissionRejected Code = "SUBMISSION_REJECTED"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeUnknownForm        Code = "UNKNOWN_FORM"

	// Upstream errors
	CodeUpstream Code = "UPSTREAM_FAILURE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument,
		CodeLicenseInvalid,
		CodeUnknownPrice,
		CodeShippingUnsupported,
		CodeServiceUnavailable,
		CodeWebhookSignature:
		return http.StatusBadRequest

	case CodeValidation,
		CodeSubmissionRejected:
		return http.StatusUnprocessableEntity

	case CodeUnauthenticated,
		CodeMagicLinkInvalid,
		CodeMagicLinkExpired,
		CodePasskeyCeremony,
		CodeSessionInvalid:
		return http.StatusUnauthorized

	case CodeForbidden,
		CodeAccountPending,
		CodeAccountSuspended:
		return http.StatusForbidden

	case CodeNotFound,
		CodeUnknownForm:
		return http.StatusNotFound

	case CodeAlreadyExists,
		CodeStatusTransition,
		CodeProductUnavailable:
		return http.StatusConflict

	case CodeRateLimited:
		return http.StatusTooManyRequests

	case CodePaymentFailed:
		return http.StatusPaymentRequired

	case CodeWebhookUnsupported:
		return http.StatusOK

	case CodeUpstream:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
