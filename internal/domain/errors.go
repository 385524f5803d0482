package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies domain failures so callers can branch without matching messages
type ErrorKind string

const (
	KindNotFound      ErrorKind = "not_found"
	KindInvalidState  ErrorKind = "invalid_state"
	KindDuplicateVote ErrorKind = "duplicate_vote"
	KindValidation    ErrorKind = "validation"
	KindInternal      ErrorKind = "internal"
)

// Error is a domain error tagged with a kind
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, which lets the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrAgendaNotFound = &Error{Kind: KindNotFound}
	ErrInvalidState   = &Error{Kind: KindInvalidState}
	ErrDuplicateVote  = &Error{Kind: KindDuplicateVote}
	ErrValidation     = &Error{Kind: KindValidation}

	// ErrStatusConflict is returned by conditional store writes whose status guard did not hold
	ErrStatusConflict = errors.New("agenda status changed concurrently")
)

// NewNotFound reports a missing agenda
func NewNotFound(agendaID string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("agenda %s not found", agendaID)}
}

// NewInvalidState reports an operation the agenda's status forbids
func NewInvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// NewDuplicateVote reports a second vote from the same user on the same agenda
func NewDuplicateVote(userID, agendaID string) *Error {
	return &Error{Kind: KindDuplicateVote, Message: fmt.Sprintf("user %s already voted on agenda %s", userID, agendaID)}
}

// NewValidation reports malformed input
func NewValidation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewInternal wraps an infrastructure failure
func NewInternal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the kind of a domain error, or KindInternal for anything else
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
