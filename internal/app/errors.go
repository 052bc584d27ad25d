package app

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

// Workflow conflict codes.
const (
	CodeProposalClosed     = "PROPOSAL_CLOSED"
	CodeProposalExpired    = "PROPOSAL_EXPIRED"
	CodeNoPendingCounter   = "NO_PENDING_COUNTER"
	CodeCounterPending     = "COUNTER_PENDING"
	CodeNotReadyForPayment = "NOT_READY_FOR_PAYMENT"
	CodeAlreadyPaid        = "ALREADY_PAID"
	CodeNotAccepted        = "PROPOSAL_NOT_ACCEPTED"
	CodeBriefClosed        = "BRIEF_CLOSED"
)

func validationError(message string, fields map[string]string) *DomainError {
	var details any
	if len(fields) > 0 {
		details = map[string]any{"fields": fields}
	}
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func conflict(code, message string) *DomainError {
	return domainError(http.StatusConflict, code, message, nil)
}

func forbidden() *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
}
