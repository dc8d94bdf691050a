package core

import (
	"context"
	"errors"

	"github.com/dkeye/Meet/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrState       = errors.New("invalid state")
	ErrGateway     = errors.New("media gateway")
	ErrTimeout     = errors.New("timeout")
	ErrValidation  = errors.New("validation failed")
	ErrRateLimited = errors.New("rate limited")
)

// ErrorKind is the wire name of an error class.
type ErrorKind string

const (
	KindNotFound    ErrorKind = "NotFound"
	KindForbidden   ErrorKind = "Forbidden"
	KindState       ErrorKind = "StateError"
	KindGateway     ErrorKind = "GatewayError"
	KindTimeout     ErrorKind = "Timeout"
	KindValidation  ErrorKind = "ValidationError"
	KindRateLimited ErrorKind = "RateLimited"
	KindInternal    ErrorKind = "InternalError"
)

var validationErrors = []error{
	ErrValidation,
	domain.ErrUsernameEmpty,
	domain.ErrUsernameTooLong,
	domain.ErrUserIDEmpty,
	domain.ErrUserIDTooLong,
	domain.ErrRoomIDEmpty,
	domain.ErrMessageEmpty,
	domain.ErrMessageTooLong,
	domain.ErrUnknownKind,
}

// KindOf classifies err for clients.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrState):
		return KindState
	case errors.Is(err, ErrGateway):
		return KindGateway
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	}
	for _, v := range validationErrors {
		if errors.Is(err, v) {
			return KindValidation
		}
	}
	return KindInternal
}
