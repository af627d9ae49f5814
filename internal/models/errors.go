package models

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pass service. Handlers map each kind to one
// HTTP status; anything that does not match is a server error.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotRegistered   = errors.New("not registered")
	ErrNotFound        = errors.New("not found")
	ErrTooManyRequests = errors.New("too many requests")
)

// PassError carries a client-facing message alongside its error kind
type PassError struct {
	Kind    error
	Message string
}

func (e *PassError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PassError) Unwrap() error {
	return e.Kind
}

// NewBadRequest returns a BadRequest error with the given message
func NewBadRequest(msg string) error {
	return &PassError{Kind: ErrBadRequest, Message: msg}
}

// NewUnauthorized returns an Unauthorized error with the given message
func NewUnauthorized(msg string) error {
	return &PassError{Kind: ErrUnauthorized, Message: msg}
}

// NewNotRegistered returns a NotRegistered error with the given message
func NewNotRegistered(msg string) error {
	return &PassError{Kind: ErrNotRegistered, Message: msg}
}

// NewTooManyRequests returns a TooManyRequests error with the given message
func NewTooManyRequests(msg string) error {
	return &PassError{Kind: ErrTooManyRequests, Message: msg}
}

// NewNotFound returns a NotFound error with the given message
func NewNotFound(msg string) error {
	return &PassError{Kind: ErrNotFound, Message: msg}
}

// PublicMessage returns the message safe to show to the caller
func PublicMessage(err error) string {
	var pe *PassError
	if errors.As(err, &pe) {
		if pe.Message != "" {
			return pe.Message
		}
		return pe.Kind.Error()
	}
	var de *DetailedError
	if errors.As(err, &de) {
		return de.Message
	}
	return "server error"
}

// DetailedError is a server error whose diagnostic detail is shown to the
// caller. Only the pass save path produces it.
type DetailedError struct {
	Message string
	Err     error
}

func (e *DetailedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// NewDetailedError wraps err as a server error with a public message
func NewDetailedError(msg string, err error) error {
	return &DetailedError{Message: msg, Err: err}
}

// ErrorDetails returns the diagnostic detail carried by a DetailedError
func ErrorDetails(err error) string {
	var de *DetailedError
	if errors.As(err, &de) && de.Err != nil {
		return de.Err.Error()
	}
	return ""
}
