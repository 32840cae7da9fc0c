package domain

import (
	"errors"
	"fmt"
)

// ErrorKind классифицирует ошибки для транспортного слоя.
type ErrorKind string

const (
	KindConfiguration       ErrorKind = "configuration"
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
	KindConstraintViolation ErrorKind = "constraint_violation"
	KindRateLimited         ErrorKind = "rate_limited"
	KindUpstream            ErrorKind = "upstream"
	KindConnection          ErrorKind = "connection"
	KindUnsupportedAirport  ErrorKind = "unsupported_airport"
)

// Error описывает типизированную ошибку домена.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	if e.Message == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает ошибки по виду, чтобы работал errors.Is с сентинелами ниже.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrConstraintViolation = &Error{Kind: KindConstraintViolation}
	ErrRateLimited         = &Error{Kind: KindRateLimited}
	ErrUpstream            = &Error{Kind: KindUpstream}
	ErrConnection          = &Error{Kind: KindConnection}
	ErrUnsupportedAirport  = &Error{Kind: KindUnsupportedAirport}
)

// NewError создаёт ошибку заданного вида.
func NewError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// ConfigurationError сообщает об отсутствующей настройке.
func ConfigurationError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

// ValidationError сообщает о некорректном вводе.
func ValidationError(msg string, cause error) *Error {
	return &Error{Kind: KindValidation, Message: msg, Err: cause}
}

// NotFoundError сообщает об отсутствии записи.
func NotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// UnsupportedAirportError сообщает о коде вне списка поддерживаемых.
func UnsupportedAirportError(code string) *Error {
	return &Error{Kind: KindUnsupportedAirport, Message: fmt.Sprintf("unsupported airport %q", code)}
}

// KindOf возвращает вид ошибки, пробираясь через обёртки.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
