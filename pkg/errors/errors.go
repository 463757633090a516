package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrMeetingNotFound     = errors.New("meeting not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrRoomNotFound        = errors.New("room not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrBadRequest          = errors.New("bad request")
	ErrInternalServer      = errors.New("internal server error")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
	ErrConflict            = errors.New("invalid state transition")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrDependencyFailure   = errors.New("dependency failure")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMeetingNotFound),
		errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict), errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrCapacityExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrDependencyFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromError - короткий код ошибки для событий WebSocket
func CodeFromError(err error) string {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMeetingNotFound),
		errors.Is(err, ErrParticipantNotFound), errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrRoomNotFound):
		return "not_found"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return "auth_error"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrDependencyFailure):
		return "dependency_failure"
	default:
		return "internal_error"
	}
}
