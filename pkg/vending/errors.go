package vending

import (
	"errors"
	"fmt"
)

// ErrorKind classifies expected business failures.
type ErrorKind string

const (
	KindNotFound              ErrorKind = "not_found"
	KindInvalidInput          ErrorKind = "invalid_input"
	KindInsufficientFunds     ErrorKind = "insufficient_funds"
	KindPermissionDenied      ErrorKind = "permission_denied"
	KindSessionConflict       ErrorKind = "session_conflict"
	KindAuthenticationFailure ErrorKind = "authentication_failure"
	KindPersistenceFailure    ErrorKind = "persistence_failure"
	KindInternal              ErrorKind = "internal"
)

// Domain-level error values. Their messages are safe to show to callers.
var (
	ErrInvalidProduct         = errors.New("invalid product id")
	ErrUserUnavailable        = errors.New("unable to fetch user")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrUserUpdateFailed       = errors.New("unable to update user data")
	ErrInvalidCoin            = errors.New("invalid amount, coin must be a valid amount")
	ErrInvalidQuantity        = errors.New("product count must be greater than zero")
	ErrInvalidPrice           = errors.New("price must be a non-negative amount with at most two decimal places")
	ErrInvalidBalance         = errors.New("invalid balance")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidProductID       = errors.New("invalid product id")
	ErrInvalidEmail           = errors.New("invalid email address")
	ErrInvalidName            = errors.New("first name, last name and product name are required")
	ErrInvalidRole            = errors.New("invalid role")
	ErrWeakPassword           = errors.New("password must be at least 8 characters with upper case, lower case and digit")
	ErrPasswordMismatch       = errors.New("passwords do not match")
	ErrPasswordTooLong        = errors.New("password must be at most 72 bytes")
	ErrInvalidMetadataJSON    = errors.New("invalid metadata json")
	ErrAccountExists          = errors.New("user already exists")
	ErrAccountNotFound        = errors.New("user not found")
	ErrProductNotFound        = errors.New("product not found")
	ErrProductUnavailable     = errors.New("unable to fetch product")
	ErrProductWriteFailed     = errors.New("unable to save product")
	ErrAccountWriteFailed     = errors.New("unable to save user")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrSessionActive          = errors.New("there is already an active session using your account")
	ErrSessionUnavailable     = errors.New("unable to verify session")
	ErrInvalidCredentials     = errors.New("incorrect email or password")
	ErrTokenIssue             = errors.New("unable to issue token")
	ErrNoRowsAffected         = errors.New("no rows affected")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
	ErrInvalidDenominationSet = errors.New("denominations must be descending, positive and canonical")
)

// Failure is the failure variant of every core operation: a kind, a caller-facing
// reason, and an optional internal cause that is never shown to callers.
type Failure struct {
	kind   ErrorKind
	reason error
	cause  error
}

// Error returns the reason followed by the cause, if any.
func (failure Failure) Error() string {
	if failure.cause == nil {
		return failure.reason.Error()
	}
	return fmt.Sprintf("%s: %v", failure.reason.Error(), failure.cause)
}

// Unwrap exposes both the reason sentinel and the cause to errors.Is / errors.As.
func (failure Failure) Unwrap() []error {
	if failure.cause == nil {
		return []error{failure.reason}
	}
	return []error{failure.reason, failure.cause}
}

// Kind returns the failure classification.
func (failure Failure) Kind() ErrorKind {
	return failure.kind
}

// Message returns the caller-facing reason.
func (failure Failure) Message() string {
	return failure.reason.Error()
}

// NewFailure builds a Failure for adapters that reject input before it reaches a core operation.
func NewFailure(kind ErrorKind, reason error, cause error) error {
	if reason == nil {
		reason = errors.New(string(kind))
	}
	return fail(kind, reason, cause)
}

func fail(kind ErrorKind, reason error, cause error) error {
	return Failure{kind: kind, reason: reason, cause: cause}
}

// KindOf reports the kind of err, or KindInternal for errors not produced by this package.
func KindOf(err error) ErrorKind {
	var failure Failure
	if errors.As(err, &failure) {
		return failure.kind
	}
	return KindInternal
}

// MessageOf returns a caller-safe message for err.
func MessageOf(err error) string {
	var failure Failure
	if errors.As(err, &failure) {
		return failure.Message()
	}
	return "internal error"
}

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
