package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError provides a structured error that can be rendered to API consumers.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithMessage returns a copy of the AppError carrying a more specific message.
func (e *AppError) WithMessage(message string) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Message = message
	return &cpy
}

// Is matches AppErrors by code so sentinel comparisons survive WithMessage
// and WithInternal copies.
func (e *AppError) Is(target error) bool {
	if e == nil {
		return target == nil
	}

	var other *AppError
	if !errors.As(target, &other) || other == nil {
		return false
	}
	return e.Code == other.Code
}

// Common errors exposed to the rest of the engine.
var (
	// ErrValidation covers structural rule violations detected before any write.
	ErrValidation = &AppError{
		Code:       "VALIDATION_FAILED",
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
	}

	// ErrUniqueness signals a duplicate subject+resource authorization.
	ErrUniqueness = &AppError{
		Code:       "AUTHORIZATION_NOT_UNIQUE",
		Message:    "An authorization for this subject and resource already exists",
		StatusCode: http.StatusConflict,
	}

	// ErrOptimisticLocking signals a stale revision on update. Callers may
	// reload and retry; the engine never retries on its own.
	ErrOptimisticLocking = &AppError{
		Code:       "OPTIMISTIC_LOCKING_FAILURE",
		Message:    "The authorization was updated concurrently, reload and retry",
		StatusCode: http.StatusConflict,
	}

	// ErrAuthorizationDenied indicates the principal lacks a specific permission.
	ErrAuthorizationDenied = &AppError{
		Code:       "FORBIDDEN",
		Message:    "Permission denied",
		StatusCode: http.StatusForbidden,
	}

	// ErrAdminRequired indicates the operation is gated behind membership in the
	// configured admin users or groups, regardless of any specific grant.
	ErrAdminRequired = &AppError{
		Code:       "ADMIN_REQUIRED",
		Message:    "Admin authenticated group or user required",
		StatusCode: http.StatusForbidden,
	}

	// ErrInvalidPermission indicates a permission not declared for a resource type.
	ErrInvalidPermission = &AppError{
		Code:       "INVALID_PERMISSION_FOR_RESOURCE",
		Message:    "The permission is not valid for the resource type",
		StatusCode: http.StatusBadRequest,
	}

	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "Resource not found",
		StatusCode: http.StatusNotFound,
	}

	ErrInternalServer = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewValidation wraps a structural violation with a human-readable message.
func NewValidation(message string) *AppError {
	return ErrValidation.WithMessage(message)
}

// NewInvalidPermission reports a permission/resource-type mismatch, naming both sides.
func NewInvalidPermission(permissionName, resourceName string) *AppError {
	return ErrInvalidPermission.WithMessage(fmt.Sprintf(
		"The permission '%s' is not valid for resource type '%s'", permissionName, resourceName))
}

// NewAuthorizationDenied reports the missing permission for diagnostics.
func NewAuthorizationDenied(permissionName, resourceName, resourceID string) *AppError {
	msg := fmt.Sprintf("The user does not have permission '%s' on resource '%s'", permissionName, resourceName)
	if resourceID != "" {
		msg = fmt.Sprintf("%s with id '%s'", msg, resourceID)
	}
	return ErrAuthorizationDenied.WithMessage(msg)
}
