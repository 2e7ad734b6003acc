package model

import "errors"

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ErrorKind classifies a domain error for transport mapping.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindUpstream
)

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON        = "INVALID_JSON"
	ErrCodeMissingField       = "MISSING_FIELD"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidQuantity    = "INVALID_QUANTITY"
	ErrCodeInvalidTransition  = "INVALID_TRANSITION"
	ErrCodeImageCount         = "INVALID_IMAGE_COUNT"
	ErrCodeTreeNotFound       = "TREE_NOT_FOUND"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeNotCancellable     = "ORDER_NOT_CANCELLABLE"
	ErrCodeNoPlantingDetails  = "NO_PLANTING_DETAILS"
	ErrCodeUpstream           = "UPSTREAM_FAILURE"
	ErrCodeUnauthorised       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodePaymentNotPayable  = "PAYMENT_NOT_PAYABLE"
	ErrCodeUnknownFormField   = "UNKNOWN_FIELD"
	ErrCodeInvalidCoordinates = "INVALID_COORDINATES"
)

// DomainError is returned by services for failures the caller can act on.
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// Validation returns a 400-class domain error.
func Validation(code, message string) *DomainError {
	return NewDomainError(KindValidation, code, message)
}

// Conflict returns a stale-state domain error. Clients should re-fetch and retry.
func Conflict(message string) *DomainError {
	return NewDomainError(KindConflict, ErrCodeConflict, message)
}

// Upstream wraps a collaborator failure (blob storage, gateway).
func Upstream(message string) *DomainError {
	return NewDomainError(KindUpstream, ErrCodeUpstream, message)
}

// AsDomainError unwraps err into a *DomainError if it is one.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	de, ok := AsDomainError(err)
	return ok && de.Kind == kind
}

// Common domain errors
var (
	ErrInvalidQuantity   = Validation(ErrCodeInvalidQuantity, "Quantity must be at least one")
	ErrTreeNotFound      = Validation(ErrCodeTreeNotFound, "One or more trees not found")
	ErrOrderNotFound     = NewDomainError(KindNotFound, ErrCodeOrderNotFound, "Order not found")
	ErrTaskNotFound      = NewDomainError(KindNotFound, ErrCodeTaskNotFound, "Task not found")
	ErrInvalidTransition = Validation(ErrCodeInvalidTransition, "Requested status transition is not allowed")
	ErrImageCount        = Validation(ErrCodeImageCount, "Between 1 and 5 images are required")
	ErrNoPlantingDetails = Validation(ErrCodeNoPlantingDetails, "Task has no planting details")
	ErrNotCancellable    = NewDomainError(KindConflict, ErrCodeNotCancellable, "Order can no longer be cancelled")
	ErrStaleTask         = Conflict("Task state changed, refresh and retry")
	ErrNotPayable        = NewDomainError(KindConflict, ErrCodePaymentNotPayable, "Order cannot be marked as paid")
	ErrUnauthorised      = NewDomainError(KindUnauthorized, ErrCodeUnauthorised, "Authentication required")
	ErrForbidden         = NewDomainError(KindForbidden, ErrCodeForbidden, "Not allowed to access this resource")
)
