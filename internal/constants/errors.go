package constants

import "net/http"

// APIError represents a standardized API error with code, message, and HTTP status.
// Use these predefined errors for consistent API responses across the application.
type APIError struct {
	Code    string
	Message string
	Status  int
}

// WithMessage returns a copy of the APIError with a custom message.
// Useful for validation errors or other dynamic messages.
func (e APIError) WithMessage(message string) APIError {
	return APIError{
		Code:    e.Code,
		Message: message,
		Status:  e.Status,
	}
}

// Common errors - shared across multiple modules
var (
	ErrInvalidRequestBody = APIError{
		Code:    CodeInvalidRequest,
		Message: MsgInvalidRequestBody,
		Status:  http.StatusBadRequest,
	}
	ErrInternalError = APIError{
		Code:    CodeInternalError,
		Message: MsgInternalError,
		Status:  http.StatusInternalServerError,
	}
	ErrUnauthorized = APIError{
		Code:    CodeUnauthorized,
		Message: MsgUnauthorized,
		Status:  http.StatusUnauthorized,
	}
	ErrRateLimited = APIError{
		Code:    CodeRateLimited,
		Message: MsgRateLimited,
		Status:  http.StatusTooManyRequests,
	}
)

// Shortener-specific errors
var (
	ErrInvalidURL = APIError{
		Code:    CodeInvalidURL,
		Message: MsgInvalidURL,
		Status:  http.StatusBadRequest,
	}
	ErrLinkNotFound = APIError{
		Code:    CodeLinkNotFound,
		Message: MsgLinkNotFound,
		Status:  http.StatusNotFound,
	}
	ErrDomainNotFound = APIError{
		Code:    CodeDomainNotFound,
		Message: MsgDomainNotFound,
		Status:  http.StatusBadRequest,
	}
	ErrAddressTaken = APIError{
		Code:    CodeAddressTaken,
		Message: MsgAddressTaken,
		Status:  http.StatusConflict,
	}
	ErrBanned = APIError{
		Code:    CodeBanned,
		Message: MsgBanned,
		Status:  http.StatusForbidden,
	}
	ErrBannedTarget = APIError{
		Code:    CodeBannedTarget,
		Message: MsgBannedTarget,
		Status:  http.StatusBadRequest,
	}
	ErrPasswordRequired = APIError{
		Code:    CodePasswordRequired,
		Message: MsgPasswordRequired,
		Status:  http.StatusUnauthorized,
	}
	ErrPasswordMismatch = APIError{
		Code:    CodePasswordMismatch,
		Message: MsgPasswordMismatch,
		Status:  http.StatusUnauthorized,
	}
)
