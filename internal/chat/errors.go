package chat

import "errors"

// Kind classifies a chat failure for the originating connection.
type Kind string

const (
	KindAuth         Kind = "auth"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindChatClosed   Kind = "chat_closed"
	KindExpired      Kind = "expired"
	KindValidation   Kind = "validation"
	KindInternal     Kind = "internal"
)

// Error is a classified chat failure. Errors with an empty Message act as
// sentinels: errors.Is matches any Error of the same Kind against them.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Sentinels for errors.Is checks.
var (
	ErrAuth         = &Error{Kind: KindAuth}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrChatClosed   = &Error{Kind: KindChatClosed}
	ErrExpired      = &Error{Kind: KindExpired}
	ErrValidation   = &Error{Kind: KindValidation}
)

func newError(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

// Errorf-style constructors used by sibling packages.
func AuthError(msg string) error         { return newError(KindAuth, msg) }
func UnauthorizedError(msg string) error { return newError(KindUnauthorized, msg) }
func NotFoundError(msg string) error     { return newError(KindNotFound, msg) }
func ChatClosedError(msg string) error   { return newError(KindChatClosed, msg) }
func ExpiredError(msg string) error      { return newError(KindExpired, msg) }
func ValidationError(msg string) error   { return newError(KindValidation, msg) }

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}
