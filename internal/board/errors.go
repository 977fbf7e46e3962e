package board

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	ErrUnauthenticated     = domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Sign in before posting", nil)
	ErrForbidden           = domainError(http.StatusForbidden, "FORBIDDEN", "Admin secret mismatch", nil)
	ErrNotFound            = domainError(http.StatusNotFound, "NOT_FOUND", "Comment not found", nil)
	ErrEmptyContent        = domainError(http.StatusUnprocessableEntity, "EMPTY_CONTENT", "Comment is empty after cleanup", nil)
	ErrTooLong             = domainError(http.StatusUnprocessableEntity, "TOO_LONG", "Comment exceeds the maximum length", nil)
	ErrDuplicateSubmission = domainError(http.StatusConflict, "DUPLICATE_SUBMISSION", "This identity has already posted", nil)
	ErrMalformedInput      = domainError(http.StatusBadRequest, "MALFORMED_INPUT", "Request payload could not be parsed", nil)
)
