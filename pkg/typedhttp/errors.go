package typedhttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidJSON marks a request body that could not be parsed.
var ErrInvalidJSON = errors.New("invalid JSON")

// ValidationError represents a request validation error.
type ValidationError struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, fields map[string]string) *ValidationError {
	return &ValidationError{
		Message: message,
		Fields:  fields,
	}
}

// NotFoundError represents a resource not found error.
type NotFoundError struct {
	Message string `json:"message"`
}

func (e *NotFoundError) Error() string {
	return e.Message
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(message string) *NotFoundError {
	return &NotFoundError{Message: message}
}

// UnauthorizedError represents an authentication error.
type UnauthorizedError struct {
	Message string `json:"message"`
}

func (e *UnauthorizedError) Error() string {
	return e.Message
}

// NewUnauthorizedError creates a new unauthorized error.
func NewUnauthorizedError(message string) *UnauthorizedError {
	return &UnauthorizedError{
		Message: message,
	}
}

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// DefaultErrorMapper provides a default implementation of ErrorMapper.
type DefaultErrorMapper struct{}

// MapError maps application errors to HTTP status codes and responses.
func (m *DefaultErrorMapper) MapError(err error) (int, interface{}) {
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "VALIDATION_ERROR",
			Details: valErr.Fields,
		}
	}

	var nfErr *NotFoundError
	if errors.As(err, &nfErr) {
		return http.StatusNotFound, ErrorResponse{
			Error: nfErr.Error(),
			Code:  "NOT_FOUND",
		}
	}

	var authErr *UnauthorizedError
	if errors.As(err, &authErr) {
		return http.StatusUnauthorized, ErrorResponse{
			Error: authErr.Message,
			Code:  "UNAUTHORIZED",
		}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.Is(err, ErrInvalidJSON) || errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return http.StatusBadRequest, ErrorResponse{
			Error: "Invalid JSON in request body",
			Code:  "INVALID_JSON",
		}
	}

	// Internal errors are logged by the handler, never exposed.
	return http.StatusInternalServerError, ErrorResponse{
		Error: "Internal server error",
		Code:  "INTERNAL_ERROR",
	}
}

// validationFailure converts validator output into a ValidationError keyed
// by field name. Any other error is returned untouched.
func validationFailure(err error) error {
	var validatorErrs validator.ValidationErrors
	if !errors.As(err, &validatorErrs) {
		return err
	}

	fields := make(map[string]string, len(validatorErrs))
	for _, fe := range validatorErrs {
		fields[fe.Field()] = fe.Tag()
	}

	return NewValidationError("Validation failed", fields)
}
