// Package domain holds the worker's handler contract and error
// classification.
package domain

import (
	"errors"

	apperrors "github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/acdrainwiz/drainwiz/internal/platform/upstream"
)

type permanentError struct {
	cause error
}

func (e permanentError) Error() string {
	if e.cause == nil {
		return "permanent error"
	}
	return e.cause.Error()
}

func (e permanentError) Unwrap() error {
	return e.cause
}

// Permanent marks an error as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{cause: err}
}

// IsPermanent reports whether err was explicitly marked as non-retryable,
// or wraps an upstream rejection or domain error that a retry cannot fix.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var target permanentError
	if errors.As(err, &target) {
		return true
	}
	var status *upstream.StatusError
	if errors.As(err, &status) {
		return !status.Retryable()
	}
	switch apperrors.GetCode(err) {
	case apperrors.CodeInvalidArgument,
		apperrors.CodeValidation,
		apperrors.CodeNotFound,
		apperrors.CodeStatusTransition:
		return true
	}
	return false
}
