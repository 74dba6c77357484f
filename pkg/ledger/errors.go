package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrInvalidState       = errors.New("invalid state")
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrNotImplemented     = errors.New("not implemented")
	ErrDuplicateAccrual   = errors.New("duplicate accrual")

	ErrInvalidAccountID     = errors.New("invalid account id")
	ErrInvalidCurrency      = errors.New("invalid currency")
	ErrInvalidBucket        = errors.New("invalid bucket")
	ErrInvalidDirection     = errors.New("invalid direction")
	ErrInvalidReason        = errors.New("invalid reason")
	ErrInvalidMetadataJSON  = errors.New("invalid metadata json")
	ErrInvalidDay           = errors.New("invalid day")
	ErrInvalidPolicy        = errors.New("invalid policy")
	ErrInvalidStatus        = errors.New("invalid status")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)

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
