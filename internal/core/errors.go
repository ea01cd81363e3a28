package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeUnauthorized    = "unauthorized"
	ErrCodeNotMember       = "not_member"
	ErrCodeForbidden       = "forbidden"
	ErrCodeAlreadyJoined   = "already_joined"
	ErrCodeNotInChannel    = "not_in_channel"
	ErrCodeMessageNotFound = "message_not_found"
	ErrCodeBadRequest      = "bad_request"
	ErrCodeInternal        = "internal"
)

var (
	ErrNotMember       = errors.New("not a channel member")
	ErrAlreadyJoined   = errors.New("already joined")
	ErrNotInChannel    = errors.New("not in channel")
	ErrMessageNotFound = errors.New("message not found")
	ErrBadRequest      = errors.New("bad request")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
