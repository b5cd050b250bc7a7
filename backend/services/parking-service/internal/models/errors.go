package models

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable identifier of a caller-correctable failure.
type ErrorCode string

const (
	CodeTicketAlreadyInUse  ErrorCode = "TICKET_ALREADY_IN_USE"
	CodePlateAlreadyActive  ErrorCode = "PLATE_ALREADY_ACTIVE"
	CodePlateRequired       ErrorCode = "PLATE_REQUIRED"
	CodeTicketCodeEmpty     ErrorCode = "TICKET_CODE_EMPTY"
	CodeUnknownTicket       ErrorCode = "UNKNOWN_TICKET"
	CodeInvalidArgument     ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeTariffExists        ErrorCode = "TARIFF_EXISTS"
	CodeOperationInProgress ErrorCode = "OPERATION_IN_PROGRESS"
)

// ValidationError is surfaced verbatim to the operator and never retried.
type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is matches any ValidationError carrying the same code.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(code ErrorCode, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

var (
	ErrTicketAlreadyInUse  = &ValidationError{Code: CodeTicketAlreadyInUse, Message: "ticket code is already in use by an active session"}
	ErrPlateAlreadyActive  = &ValidationError{Code: CodePlateAlreadyActive, Message: "plate already has an active session"}
	ErrPlateRequired       = &ValidationError{Code: CodePlateRequired, Message: "plate is required for car, motorcycle and truck"}
	ErrTicketCodeEmpty     = &ValidationError{Code: CodeTicketCodeEmpty, Message: "ticket code is empty"}
	ErrUnknownTicket       = &ValidationError{Code: CodeUnknownTicket, Message: "no active session for ticket"}
	ErrNotFound            = &ValidationError{Code: CodeNotFound, Message: "not found"}
	ErrInvalidArgument     = &ValidationError{Code: CodeInvalidArgument, Message: "invalid argument"}
	ErrTariffExists        = &ValidationError{Code: CodeTariffExists, Message: "a tariff already exists for this vehicle class and scope"}
	ErrOperationInProgress = &ValidationError{Code: CodeOperationInProgress, Message: "the same operation is already in progress"}
)

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// CodeOf returns the validation code carried by err, or "".
func CodeOf(err error) ErrorCode {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Code
	}
	return ""
}
