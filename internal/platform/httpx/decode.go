package httpx

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/acdrainwiz/drainwiz/internal/platform/errors"
	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes bounds JSON request bodies.
const MaxBodyBytes = 64 << 10

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator. Field names in errors follow the
// json tags of the validated struct.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// DecodeJSON reads a bounded JSON body into dst and validates it. Failures
// are returned as domain errors ready for WriteError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := DecodeJSONBody(w, r, dst); err != nil {
		return err
	}
	return ValidateStruct(dst)
}

// DecodeJSONBody reads a bounded JSON body into dst without running struct
// validation.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if stderrors.As(err, &maxErr) {
			return errors.Wrap(errors.CodeInvalidArgument, "request body too large", err)
		}
		return errors.Wrap(errors.CodeInvalidArgument, "decode json body", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New(errors.CodeInvalidArgument, "request body must contain a single JSON object")
	}
	return nil
}

// ValidateStruct runs struct tag validation and converts failures into a
// CodeValidation error whose metadata maps field paths to messages.
func ValidateStruct(dst any) error {
	err := Validator().Struct(dst)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if stderrors.As(err, &invalid) {
		return errors.Wrap(errors.CodeUnknown, "validate request", err)
	}
	var fieldErrs validator.ValidationErrors
	if !stderrors.As(err, &fieldErrs) {
		return errors.Wrap(errors.CodeValidation, "validate request", err)
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe.Namespace())] = messageForTag(fe.Tag(), fe.Param())
	}
	return errors.WithMetadata(errors.CodeValidation, "request failed validation", fields)
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}

func messageForTag(tag, param string) string {
	switch tag {
	case "required", "required_if", "required_without":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min", "gte":
		return fmt.Sprintf("Must be at least %s.", param)
	case "max", "lte":
		return fmt.Sprintf("Must be at most %s.", param)
	case "len":
		return fmt.Sprintf("Must be exactly %s characters.", param)
	case "oneof":
		return fmt.Sprintf("Must be one of: %s.", param)
	case "uuid4", "uuid":
		return "Must be a valid identifier."
	case "iso3166_1_alpha2":
		return "Must be a two-letter country code."
	default:
		return "Invalid value."
	}
}
