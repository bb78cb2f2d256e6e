package engine

import (
	"fmt"
	"strings"
)

// ErrorKind classifies engine failures for the tool layer.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "invalid_input"
	KindNotFound        ErrorKind = "not_found"
	KindAlreadyExists   ErrorKind = "already_exists"
	KindAlreadyResolved ErrorKind = "already_resolved"
	KindNotReady        ErrorKind = "not_ready"
)

// Error carries a kind plus human-readable detail. NotReady errors also
// enumerate the specific missing preconditions.
type Error struct {
	Kind    ErrorKind
	Message string
	Missing []string
}

func (e *Error) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Missing, "; "))
	}
	return e.Message
}

func invalidInput(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func alreadyExists(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyExists, Message: fmt.Sprintf(format, args...)}
}

func alreadyResolved(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyResolved, Message: fmt.Sprintf(format, args...)}
}

func notReady(missing []string) *Error {
	return &Error{Kind: KindNotReady, Message: "project is not ready for working", Missing: missing}
}
