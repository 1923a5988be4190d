package response

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Response struct {
	ResponseError `json:"error,omitzero"`
}

type ResponseError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	ConflictIDs []string `json:"conflicting_booking_ids,omitempty"`
}

// Error Codes
type ErrCode string

var (
	FAILED_REQUEST ErrCode = "REQUEST_FAILED"
	BAD_REQUEST    ErrCode = "FAILED_TO_DECODE"
	VALIDATION     ErrCode = "VALIDATION_FAILED"
	NOT_FOUND      ErrCode = "NOT_FOUND"
	LOCKED         ErrCode = "LOCKED"
	CONFLICT       ErrCode = "CONFLICT"
	FORBIDDEN      ErrCode = "FORBIDDEN"
	TIMEOUT        ErrCode = "TIMEOUT"
)

var (
	ErrBadRequest = errors.New("bad request")
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("resource not found")
	ErrLocked     = errors.New("resource is locked")
	ErrConflict   = errors.New("booking conflict")
	ErrForbidden  = errors.New("actor is not allowed to mutate this schedule")
	ErrTimeout    = errors.New("store timed out")
	ErrCancelled  = errors.New("booking is cancelled")
)

// ConflictError carries the ids of the colliding live bookings so the
// caller can resolve or reschedule. Unwraps to ErrConflict.
type ConflictError struct {
	BookingIDs []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking conflict with [%s]", strings.Join(e.BookingIDs, ", "))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func Error(code, msg string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:    code,
			Message: msg,
		},
	}
}

func ConflictResponse(msg string, ids []string) Response {
	return Response{
		ResponseError: ResponseError{
			Code:        string(CONFLICT),
			Message:     msg,
			ConflictIDs: ids,
		},
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsg []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' is required", err.Field()))
		case "oneof":
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' must be one of [%s]", err.Field(), err.Param()))
		case "datetime":
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' must match format %s", err.Field(), err.Param()))
		case "min":
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' must be at least %s", err.Field(), err.Param()))
		case "max":
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' must be at most %s", err.Field(), err.Param()))
		default:
			errMsg = append(errMsg, fmt.Sprintf("Field '%s' is invalid", err.Field()))
		}
	}

	return Response{
		ResponseError: ResponseError{
			Code:    string(VALIDATION),
			Message: strings.Join(errMsg, ", "),
		},
	}
}
